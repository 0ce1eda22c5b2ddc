// Package extraction sends normalized invoice images to a
// document-understanding model and turns its reply into invoice fields.
package extraction

import "context"

// Prompt is the fixed field-extraction instruction sent with every image.
const Prompt = `Extract the following fields from this invoice image and reply with a single JSON object only:
invoiceNumber, TRNnumber, totalAmount, VATtotal, companyName, invoiceDate, grossAmount.
Use strings for every value. Use null for any field that is not present on the invoice.`

// Client sends one image to an extraction capability and returns its raw
// text reply. The reply is not guaranteed to be valid JSON.
type Client interface {
	Extract(ctx context.Context, image []byte, mimeType string) (string, error)
}
