package router

import (
	"github.com/alienkawsar/verilnk-sub004/app/controllers"

	"github.com/gofiber/fiber/v2"
)

// CallbackRouter registers the provider-facing surface: webhook deliveries
// and the browser returns from hosted payment pages. These live outside
// /api because the URLs are registered with the providers.
type CallbackRouter struct {
}

func (h CallbackRouter) InstallRouter(app *fiber.App) {
	app.Post("/billing/webhook/stripe", controllers.HandleStripeWebhook)
	app.Get("/billing/checkout/success", controllers.HandleStripeCheckoutSuccess)
	app.Get("/billing/checkout/cancel", controllers.HandleStripeCheckoutCancel)

	// SSLCommerz posts the browser back with form data; some integrations
	// arrive as GET with query parameters.
	app.Post("/billing/sslcommerz/success", controllers.HandleSSLCommerzSuccess)
	app.Get("/billing/sslcommerz/success", controllers.HandleSSLCommerzSuccess)
	app.Post("/billing/sslcommerz/fail", controllers.HandleSSLCommerzFail)
	app.Get("/billing/sslcommerz/fail", controllers.HandleSSLCommerzFail)
	app.Post("/billing/sslcommerz/cancel", controllers.HandleSSLCommerzCancel)
	app.Get("/billing/sslcommerz/cancel", controllers.HandleSSLCommerzCancel)

	app.Post("/billing/mock/checkout", controllers.HandleMockCheckout)
	app.Post("/billing/mock/callback", controllers.HandleMockCallback)
	app.Get("/billing/mock/callback", controllers.HandleMockCallback)
}

func NewCallbackRouter() *CallbackRouter {
	return &CallbackRouter{}
}
