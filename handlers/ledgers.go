package handlers

import (
	"net/http"

	"github.com/satheeshds/invoicedesk/apperr"
	"github.com/satheeshds/invoicedesk/models"
)

// ListLedgers lists all ledgers
// @Summary      List ledgers
// @Description  Get every ledger invoices can be approved against.
// @Tags         ledgers
// @Produce      json
// @Param        search  query     string  false  "Search by name"
// @Success      200     {object}  Response{data=[]models.Ledger}
// @Router       /ledgers [get]
// @Security     BearerAuth
func ListLedgers(w http.ResponseWriter, r *http.Request) {
	ledgers, err := Ledgers.ListLedgers(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ledgers)
}

// CreateLedger creates a new ledger
// @Summary      Create ledger
// @Tags         ledgers
// @Accept       json
// @Produce      json
// @Param        ledger  body      models.LedgerInput  true  "Ledger contents"
// @Success      201     {object}  Response{data=models.Ledger}
// @Failure      400     {object}  Response{error=string}
// @Failure      409     {object}  Response{error=string}
// @Router       /ledgers [post]
// @Security     BearerAuth
func CreateLedger(w http.ResponseWriter, r *http.Request) {
	var input models.LedgerInput
	if !decodeJSON(w, r, &input) {
		return
	}
	if msg := input.Validate(); msg != "" {
		writeAppError(w, r, apperr.Validation("handlers.CreateLedger", "name", msg))
		return
	}
	l, err := Ledgers.CreateLedger(r.Context(), input, actorFrom(r).UserID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

// UpdateLedger edits a ledger
// @Summary      Update ledger
// @Description  Replace the name and description of a ledger.
// @Tags         ledgers
// @Accept       json
// @Produce      json
// @Param        id      path      int                 true  "Ledger ID"
// @Param        ledger  body      models.LedgerInput  true  "Ledger contents"
// @Success      200     {object}  Response{data=models.Ledger}
// @Failure      400     {object}  Response{error=string}
// @Failure      404     {object}  Response{error=string}
// @Failure      409     {object}  Response{error=string}
// @Router       /ledgers/{id} [patch]
// @Security     BearerAuth
func UpdateLedger(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var input models.LedgerInput
	if !decodeJSON(w, r, &input) {
		return
	}
	if msg := input.Validate(); msg != "" {
		writeAppError(w, r, apperr.Validation("handlers.UpdateLedger", "name", msg))
		return
	}
	l, err := Ledgers.UpdateLedger(r.Context(), id, input, actorFrom(r).UserID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// DeleteLedger deletes a ledger
// @Summary      Delete ledger
// @Description  Ledgers referenced by invoices cannot be deleted.
// @Tags         ledgers
// @Param        id  path  int  true  "Ledger ID"
// @Success      204
// @Failure      404  {object}  Response{error=string}
// @Failure      409  {object}  Response{error=string}
// @Router       /ledgers/{id} [delete]
// @Security     BearerAuth
func DeleteLedger(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := Ledgers.DeleteLedger(r.Context(), id); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
