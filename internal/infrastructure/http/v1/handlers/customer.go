package handlers

import (
	"lotledger/internal/domain/catalogs/customer"
	"lotledger/internal/infrastructure/http/v1/dto"
)

// CustomerHTTPHandler - псевдоним
type CustomerHTTPHandler = CatalogHandler[
	*customer.Customer,
	dto.CreateCustomerRequest,
	dto.UpdateCustomerRequest,
]

// NewCustomerHandler - фабрика конфигурации
func NewCustomerHandler(
	base *BaseHandler,
	service *customer.Service,
) *CustomerHTTPHandler {

	config := CatalogHandlerConfig[
		*customer.Customer,
		dto.CreateCustomerRequest,
		dto.UpdateCustomerRequest,
	]{
		Service:    service.CatalogService,
		EntityName: "customer",

		// Map Create Request
		MapCreateDTO: func(req dto.CreateCustomerRequest) *customer.Customer {
			return req.ToEntity()
		},

		// Map Update Request
		MapUpdateDTO: func(req dto.UpdateCustomerRequest, existing *customer.Customer) *customer.Customer {
			req.ApplyTo(existing)
			return existing
		},

		// Map Response
		MapToDTO: func(entity *customer.Customer) any {
			return dto.FromCustomer(entity)
		},
	}

	return NewCatalogHandler(base, config)
}
