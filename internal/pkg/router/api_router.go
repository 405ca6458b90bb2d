package router

import (
	"github.com/alienkawsar/verilnk-sub004/app/controllers"
	"github.com/alienkawsar/verilnk-sub004/internal/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")

	billing := v1.Group("/billing")
	billing.Post("/checkout", controllers.HandleBillingCheckout)
	billing.Get("/organizations/:org_id/subscription", controllers.HandleBillingSubscription)

	admin := v1.Group("/admin/billing", middleware.AdminAPIKeyMiddleware())
	admin.Post("/invoices", controllers.HandleAdminCreateManualInvoice)
	admin.Post("/invoices/:invoice_id/offline-payment", controllers.HandleAdminApplyOfflinePayment)
	admin.Post("/subscriptions/:subscription_id/cancel", controllers.HandleAdminCancelSubscription)
	admin.Post("/attempts/:attempt_id/refund-flag", controllers.HandleAdminFlagRefund)
	admin.Post("/trials/:trial_id/extend", controllers.HandleAdminExtendTrial)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
