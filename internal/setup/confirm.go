package setup

import (
	"context"
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/vadiminshakov/sovereign/internal/domain"
)

// Confirm shows the drift and plan and asks whether to send the orders.
func Confirm(ctx context.Context, drift domain.DriftResult, plan domain.ExecutionPlan) (bool, error) {
	fmt.Println(RenderDrift(drift))
	fmt.Println(RenderPlan(plan))

	var ok bool
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Send %d orders?", len(plan.Orders))).
				Description("Filled rungs are not rolled back.").
				Affirmative("Send").
				Negative("Cancel").
				Value(&ok),
		),
	).RunWithContext(ctx)
	if err != nil {
		return false, err
	}
	return ok, nil
}
