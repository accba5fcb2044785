package http

import (
	"github.com/gin-gonic/gin"
	"github.com/iyhunko/products-crud/internal/http/controller"
	"github.com/iyhunko/products-crud/internal/http/middleware"
)

func InitRouter(server *gin.Engine, ctr *controller.Controller, productCtr *controller.ProductController) *gin.Engine {
	// Apply recovery middleware globally to prevent panics from crashing the server
	server.Use(middleware.Recovery())
	server.Use(middleware.CORS())
	server.Use(middleware.Logger())

	server.GET("/ping", ctr.Ping)

	// Product endpoints; paths without the trailing slash are redirected by gin.
	products := server.Group("/products")
	{
		products.GET("/", productCtr.ListProducts)
		products.POST("/", productCtr.CreateProduct)
		products.GET("/:id/", productCtr.GetProduct)
		products.PUT("/:id/", productCtr.UpdateProduct)
		products.PATCH("/:id/", productCtr.PatchProduct)
		products.DELETE("/:id/", productCtr.DeleteProduct)
	}

	return server
}
