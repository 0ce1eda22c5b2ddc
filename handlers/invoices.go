package handlers

import (
	"net/http"

	"github.com/satheeshds/invoicedesk/models"
)

// CreateManualInvoice files an invoice entered by hand
// @Summary      Create manual invoice
// @Description  Files a caller-supplied invoice row without a file. A new document is created unless
// @Description  document_id is given. Legal and other documents are filed with zero amounts.
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        invoice  body      models.ManualInvoiceInput  true  "Invoice contents"
// @Success      201      {object}  Response{data=ingest.Result}
// @Failure      400      {object}  Response{error=string}
// @Failure      404      {object}  Response{error=string}
// @Failure      409      {object}  Response{error=string}
// @Router       /invoices/manual [post]
// @Security     BearerAuth
func CreateManualInvoice(w http.ResponseWriter, r *http.Request) {
	var input models.ManualInvoiceInput
	if !decodeJSON(w, r, &input) {
		return
	}
	res, err := Pipeline.Manual(r.Context(), input, actorFrom(r))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// GetInvoice retrieves a single invoice by ID
// @Summary      Get invoice
// @Description  Get an invoice row with a summary of its document.
// @Tags         invoices
// @Produce      json
// @Param        id   path      int  true  "Invoice ID"
// @Success      200  {object}  Response{data=ingest.InvoiceDetail}
// @Failure      404  {object}  Response{error=string}
// @Router       /invoices/{id} [get]
// @Security     BearerAuth
func GetInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	inv, err := Review.GetInvoice(r.Context(), id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

// UpdateInvoice edits an invoice
// @Summary      Update invoice
// @Description  Partial update; changing an amount refreshes the document totals.
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        id       path      int                        true  "Invoice ID"
// @Param        invoice  body      models.InvoiceUpdateInput  true  "Fields to change"
// @Success      200      {object}  Response{data=models.InvoiceData}
// @Failure      400      {object}  Response{error=string}
// @Failure      404      {object}  Response{error=string}
// @Router       /invoices/{id} [patch]
// @Security     BearerAuth
func UpdateInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var input models.InvoiceUpdateInput
	if !decodeJSON(w, r, &input) {
		return
	}
	inv, err := Review.UpdateInvoice(r.Context(), id, input, actorFrom(r))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

// ChangeInvoiceStatus moves an invoice through review
// @Summary      Change invoice status
// @Description  Any status other than pending requires an existing ledger.
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        id      path      int                        true  "Invoice ID"
// @Param        status  body      models.InvoiceStatusInput  true  "Status and ledger"
// @Success      200     {object}  Response{data=models.InvoiceData}
// @Failure      400     {object}  Response{error=string}
// @Failure      404     {object}  Response{error=string}
// @Router       /invoices/{id}/status [patch]
// @Security     BearerAuth
func ChangeInvoiceStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var input models.InvoiceStatusInput
	if !decodeJSON(w, r, &input) {
		return
	}
	inv, err := Review.ChangeInvoiceStatus(r.Context(), id, input, actorFrom(r))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

// DeleteInvoice deletes an invoice
// @Summary      Delete invoice
// @Description  Removes the row and its stored file, then refreshes the document totals.
// @Tags         invoices
// @Param        id  path  int  true  "Invoice ID"
// @Success      204
// @Failure      404  {object}  Response{error=string}
// @Router       /invoices/{id} [delete]
// @Security     BearerAuth
func DeleteInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := Review.DeleteInvoice(r.Context(), id); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
