package plan

import (
	_ "embed"
	"fmt"
)

//go:embed plans/led-basics.yaml
var defaultPlanYAML []byte

// Default returns the embedded starter plan, a two-step LED hookup on an
// Arduino Uno. It is always available even when no plan files exist.
func Default() Plan {
	p, err := Parse(defaultPlanYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded default plan is invalid: %v", err))
	}
	return p
}
