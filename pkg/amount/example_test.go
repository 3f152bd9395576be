package amount_test

import (
	"fmt"

	"github.com/dcablorh/txsense/pkg/amount"
)

func ExampleFormat() {
	sui, _ := amount.Format("-1500000000", 9)
	usdc, _ := amount.Format("2500000", 6)
	fmt.Println(sui, usdc)
	// Output: -1.5 2.5
}

func ExampleGasUsed() {
	mist, _ := amount.GasUsed("1000000", "2000000", "500000")
	fmt.Println(mist.String(), amount.MistToSUI(mist))
	// Output: 2500000 0.0025
}
