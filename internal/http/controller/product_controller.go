package controller

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/iyhunko/products-crud/internal/model"
	"github.com/iyhunko/products-crud/internal/service"
	"github.com/shopspring/decimal"
)

// ProductService is the product resource as seen by the HTTP layer.
type ProductService interface {
	ListProducts(ctx context.Context) ([]*model.Product, error)
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	CreateProduct(ctx context.Context, payload service.Payload) (*model.Product, error)
	UpdateProduct(ctx context.Context, id int64, payload service.Payload, partial bool) (*model.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
}

// ProductController handles HTTP requests for product operations.
type ProductController struct {
	productService ProductService
}

// NewProductController creates a new ProductController with the given product service.
func NewProductController(productService ProductService) *ProductController {
	return &ProductController{
		productService: productService,
	}
}

// ProductResponse represents the response body for a product. Decimals are
// encoded as JSON strings.
type ProductResponse struct {
	ID        int64               `json:"id"`
	Title     string              `json:"title"`
	Content   string              `json:"content"`
	Price     decimal.Decimal     `json:"price"`
	SalePrice decimal.NullDecimal `json:"sale_price"`
}

// ListProducts handles the HTTP GET request for listing all products.
func (pc *ProductController) ListProducts(c *gin.Context) {
	products, err := pc.productService.ListProducts(c.Request.Context())
	if err != nil {
		respondError(c, err, "list products")
		return
	}

	productResponses := make([]ProductResponse, 0, len(products))
	for _, product := range products {
		productResponses = append(productResponses, toProductResponse(product))
	}

	c.JSON(http.StatusOK, productResponses)
}

// GetProduct handles the HTTP GET request for a single product.
func (pc *ProductController) GetProduct(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	product, err := pc.productService.GetProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "get product")
		return
	}

	c.JSON(http.StatusOK, toProductResponse(product))
}

// CreateProduct handles the HTTP POST request for creating a new product.
func (pc *ProductController) CreateProduct(c *gin.Context) {
	payload, ok := bindPayload(c)
	if !ok {
		return
	}

	createdProduct, err := pc.productService.CreateProduct(c.Request.Context(), payload)
	if err != nil {
		respondError(c, err, "create product")
		return
	}

	c.JSON(http.StatusCreated, toProductResponse(createdProduct))
}

// UpdateProduct handles PUT (full replacement) requests.
func (pc *ProductController) UpdateProduct(c *gin.Context) {
	pc.update(c, false)
}

// PatchProduct handles PATCH (partial update) requests.
func (pc *ProductController) PatchProduct(c *gin.Context) {
	pc.update(c, true)
}

func (pc *ProductController) update(c *gin.Context, partial bool) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	payload, err := readPayload(c)
	if err != nil {
		// an unknown id wins over a bad body
		if _, lookupErr := pc.productService.GetProduct(c.Request.Context(), id); lookupErr != nil {
			respondError(c, lookupErr, "get product")
			return
		}
		respondError(c, err, "parse request body")
		return
	}

	updated, err := pc.productService.UpdateProduct(c.Request.Context(), id, payload, partial)
	if err != nil {
		respondError(c, err, "update product")
		return
	}

	c.JSON(http.StatusOK, toProductResponse(updated))
}

// DeleteProduct handles the HTTP DELETE request for deleting a product by ID.
func (pc *ProductController) DeleteProduct(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := pc.productService.DeleteProduct(c.Request.Context(), id); err != nil {
		respondError(c, err, "delete product")
		return
	}

	c.Status(http.StatusNoContent)
}

func bindPayload(c *gin.Context) (service.Payload, bool) {
	payload, err := readPayload(c)
	if err != nil {
		respondError(c, err, "parse request body")
		return nil, false
	}
	return payload, true
}

func readPayload(c *gin.Context) (service.Payload, error) {
	body, err := c.GetRawData()
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	return service.ParsePayload(body)
}

func toProductResponse(product *model.Product) ProductResponse {
	return ProductResponse{
		ID:        product.ID,
		Title:     product.Title,
		Content:   product.Content,
		Price:     product.Price,
		SalePrice: product.SalePrice,
	}
}
