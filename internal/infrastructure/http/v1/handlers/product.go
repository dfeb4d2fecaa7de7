package handlers

import (
	"lotledger/internal/domain/catalogs/product"
	"lotledger/internal/infrastructure/http/v1/dto"
)

// ProductHTTPHandler - псевдоним
type ProductHTTPHandler = CatalogHandler[
	*product.Product,
	dto.CreateProductRequest,
	dto.UpdateProductRequest,
]

// NewProductHandler - фабрика конфигурации
func NewProductHandler(
	base *BaseHandler,
	service *product.Service,
) *ProductHTTPHandler {

	config := CatalogHandlerConfig[
		*product.Product,
		dto.CreateProductRequest,
		dto.UpdateProductRequest,
	]{
		Service:    service.CatalogService,
		EntityName: "product",

		// Map Create Request
		MapCreateDTO: func(req dto.CreateProductRequest) *product.Product {
			return req.ToEntity()
		},

		// Map Update Request
		MapUpdateDTO: func(req dto.UpdateProductRequest, existing *product.Product) *product.Product {
			req.ApplyTo(existing)
			return existing
		},

		// Map Response
		MapToDTO: func(entity *product.Product) any {
			return dto.FromProduct(entity)
		},
	}

	return NewCatalogHandler(base, config)
}
