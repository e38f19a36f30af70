package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/ticketing/internal/domain"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var kindStatus = map[domain.ErrorKind]int{
	domain.KindNotFound:           http.StatusNotFound,
	domain.KindForbidden:          http.StatusForbidden,
	domain.KindArgument:           http.StatusBadRequest,
	domain.KindAlreadyInUse:       http.StatusConflict,
	domain.KindNotImplemented:     http.StatusNotImplemented,
	domain.KindServiceUnavailable: http.StatusServiceUnavailable,
	domain.KindRateLimitExceeded:  http.StatusTooManyRequests,
}

// writeError переводит доменную ошибку в HTTP-ответ.
func writeError(c *gin.Context, err error) {
	kind := domain.KindOf(err)
	code, ok := kindStatus[kind]
	if !ok {
		code = http.StatusInternalServerError
		kind = "Internal"
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(code, errorResponse{Error: string(kind), Message: err.Error()})
}

// parseTransactionType принимает как путь в стиле API (placeOrder), так и имя типа (PlaceOrder).
func parseTransactionType(raw string) (domain.TransactionType, error) {
	switch strings.ToLower(raw) {
	case "placeorder":
		return domain.TransactionTypePlaceOrder, nil
	case "returnorder":
		return domain.TransactionTypeReturnOrder, nil
	}
	return "", domain.NotImplemented("transaction type " + raw)
}

func parseActionType(raw string) (domain.ActionType, error) {
	for _, t := range []domain.ActionType{
		domain.ActionTypeAuthorize,
		domain.ActionTypePay,
		domain.ActionTypeRefund,
		domain.ActionTypeUse,
		domain.ActionTypeReturn,
		domain.ActionTypeSend,
		domain.ActionTypeGive,
		domain.ActionTypeOrder,
	} {
		if strings.EqualFold(raw, string(t)) || strings.EqualFold(raw+"Action", string(t)) {
			return t, nil
		}
	}
	return "", domain.NotImplemented("action type " + raw)
}

// parseSort разбирает ?sort=startDate, ?sort=-startDate, ?sort=endDate, ?sort=-endDate.
func parseSort(raw string) (*domain.ActionSort, error) {
	if raw == "" {
		return nil, nil
	}
	dir := domain.SortAscending
	field := raw
	if strings.HasPrefix(raw, "-") {
		dir = domain.SortDescending
		field = raw[1:]
	}
	switch field {
	case "startDate":
		return &domain.ActionSort{StartDate: dir}, nil
	case "endDate":
		return &domain.ActionSort{EndDate: dir}, nil
	}
	return nil, domain.Argument("sort", "unsupported sort field "+field)
}

func (h *handler) handleAction(c *gin.Context) {
	typeOf, err := parseActionType(c.Param("type"))
	if err != nil {
		writeError(c, err)
		return
	}
	action, err := h.actions.FindByID(c.Request.Context(), typeOf, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, action)
}

func (h *handler) handleOrderActions(c *gin.Context) {
	actions, err := h.actions.FindByOrderNumber(c.Request.Context(), c.Param("orderNumber"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"actions": nonNil(actions)})
}

func (h *handler) handleTransactionActions(c *gin.Context) {
	typeOf, err := parseTransactionType(c.Param("type"))
	if err != nil {
		writeError(c, err)
		return
	}
	sort, err := parseSort(c.Query("sort"))
	if err != nil {
		writeError(c, err)
		return
	}
	actions, err := h.actions.SearchByTransactionID(c.Request.Context(), domain.SearchActionsParams{
		TransactionType: typeOf,
		TransactionID:   c.Param("id"),
		Sort:            sort,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"actions": nonNil(actions)})
}

func (h *handler) handleTransaction(c *gin.Context) {
	typeOf, err := parseTransactionType(c.Param("type"))
	if err != nil {
		writeError(c, err)
		return
	}
	tx, err := h.transactions.FindByID(c.Request.Context(), typeOf, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

func (h *handler) handleTask(c *gin.Context) {
	task, err := h.tasks.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func nonNil(actions []domain.Action) []domain.Action {
	if actions == nil {
		return []domain.Action{}
	}
	return actions
}
