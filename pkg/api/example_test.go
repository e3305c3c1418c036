package api_test

import (
	"fmt"

	"github.com/arkari/irobf/internal/fixtures"
	"github.com/arkari/irobf/pkg/api"
)

func ExampleObfuscator_Run() {
	o, err := api.NewObfuscator(api.Options{})
	if err != nil {
		panic(err)
	}

	m := fixtures.DemoModule()
	summary, err := o.Run(m)
	if err != nil {
		panic(err)
	}
	fmt.Println(summary.ConstIntEncrypted.RewriteCount)
	// Output: 0
}
