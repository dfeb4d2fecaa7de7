package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/domain/ledger"
	"lotledger/internal/domain/registers/lots"
	"lotledger/internal/domain/registers/openunits"
	"lotledger/internal/domain/registers/txlog"
	"lotledger/internal/infrastructure/http/v1/dto"
)

// LedgerHandler exposes the ledger operations (receive, sell, manufacture,
// transfer, reverse) and the register inspection endpoints.
type LedgerHandler struct {
	*BaseHandler
	engine    *ledger.Service
	lots      *lots.Service
	openUnits openunits.Repository
	txLog     txlog.Repository
}

// NewLedgerHandler creates a new ledger handler.
func NewLedgerHandler(
	base *BaseHandler,
	engine *ledger.Service,
	lotService *lots.Service,
	openUnitRepo openunits.Repository,
	txLogRepo txlog.Repository,
) *LedgerHandler {
	return &LedgerHandler{
		BaseHandler: base,
		engine:      engine,
		lots:        lotService,
		openUnits:   openUnitRepo,
		txLog:       txLogRepo,
	}
}

// Receive handles POST /ledger/receivings - record a stock acquisition.
func (h *LedgerHandler) Receive(c *gin.Context) {
	var req dto.ReceiveRequest
	if !h.BindJSON(c, &req) {
		return
	}

	input, err := req.ToInput()
	if err != nil {
		h.Error(c, err)
		return
	}

	result, err := h.engine.Receive(c.Request.Context(), input)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.CompleteIdempotency(c, http.StatusCreated, "application/json", result)
	c.JSON(http.StatusCreated, result)
}

// Sell handles POST /ledger/sales - record a sale with FIFO allocation.
func (h *LedgerHandler) Sell(c *gin.Context) {
	var req dto.SaleRequest
	if !h.BindJSON(c, &req) {
		return
	}

	input, err := req.ToInput()
	if err != nil {
		h.Error(c, err)
		return
	}

	result, err := h.engine.Sell(c.Request.Context(), input)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.CompleteIdempotency(c, http.StatusCreated, "application/json", result)
	c.JSON(http.StatusCreated, result)
}

// Manufacture handles POST /ledger/manufacturings - record a manufacturing run.
func (h *LedgerHandler) Manufacture(c *gin.Context) {
	var req dto.ManufactureRequest
	if !h.BindJSON(c, &req) {
		return
	}

	input, err := req.ToInput()
	if err != nil {
		h.Error(c, err)
		return
	}

	result, err := h.engine.Manufacture(c.Request.Context(), input)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.CompleteIdempotency(c, http.StatusCreated, "application/json", result)
	c.JSON(http.StatusCreated, result)
}

// Transfer handles POST /ledger/transfers - move stock between warehouses.
func (h *LedgerHandler) Transfer(c *gin.Context) {
	var req dto.TransferRequest
	if !h.BindJSON(c, &req) {
		return
	}

	input, err := req.ToInput()
	if err != nil {
		h.Error(c, err)
		return
	}

	result, err := h.engine.Transfer(c.Request.Context(), input)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.CompleteIdempotency(c, http.StatusCreated, "application/json", result)
	c.JSON(http.StatusCreated, result)
}

// ReverseSale handles POST /ledger/sales/:id/reverse - append a
// compensating entry for a recorded sale.
func (h *LedgerHandler) ReverseSale(c *gin.Context) {
	transactionID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	result, err := h.engine.ReverseSale(c.Request.Context(), transactionID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.CompleteIdempotency(c, http.StatusCreated, "application/json", result)
	c.JSON(http.StatusCreated, result)
}

// GetProductCost handles GET /ledger/products/:id/cost - weighted-average
// cost detail with the active lots backing it.
func (h *LedgerHandler) GetProductCost(c *gin.Context) {
	productID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	result, err := h.engine.ProductCost(c.Request.Context(), productID)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ListLots handles GET /ledger/lots - inspect the lot ledger.
func (h *LedgerHandler) ListLots(c *gin.Context) {
	var req dto.LotListRequest
	if !h.BindQuery(c, &req) {
		return
	}

	items, err := h.lots.List(c.Request.Context(), req.ToFilter())
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

// ListOpenUnits handles GET /ledger/open-units - inspect opened units.
func (h *LedgerHandler) ListOpenUnits(c *gin.Context) {
	filter := openunits.ListFilter{
		ProductID:   c.Query("productId"),
		WarehouseID: c.Query("warehouseId"),
		Limit:       h.ParseIntQuery(c, "limit", 50),
		Offset:      h.ParseIntQuery(c, "offset", 0),
	}

	items, err := h.openUnits.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

// ListTransactions handles GET /ledger/transactions - inspect the
// transaction log.
func (h *LedgerHandler) ListTransactions(c *gin.Context) {
	var req dto.TransactionListRequest
	if !h.BindQuery(c, &req) {
		return
	}

	filter := req.ToFilter()
	items, total, err := h.txLog.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ListResponse{
		Items:      items,
		TotalCount: total,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	})
}

// GetTransaction handles GET /ledger/transactions/:id.
func (h *LedgerHandler) GetTransaction(c *gin.Context) {
	transactionID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	record, err := h.txLog.GetByID(c.Request.Context(), transactionID)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, record)
}
