// Package docs registers the generated OpenAPI description with swag.
// Regenerate with `swag init`.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/documents/upload": {
            "post": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "tags": [
                    "documents"
                ],
                "summary": "Upload invoice files",
                "produces": [
                    "application/json"
                ],
                "consumes": [
                    "multipart/form-data"
                ],
                "parameters": [
                    {
                        "type": "string",
                        "description": "sales, purchase, expense, legalDocuments or otherDocuments",
                        "name": "documentType",
                        "in": "formData",
                        "required": true
                    },
                    {
                        "type": "integer",
                        "description": "Attach to this document",
                        "name": "documentId",
                        "in": "formData",
                        "required": false
                    },
                    {
                        "type": "string",
                        "description": "Title of the new document (required without documentId)",
                        "name": "title",
                        "in": "formData",
                        "required": false
                    },
                    {
                        "type": "string",
                        "description": "Description of the new document",
                        "name": "description",
                        "in": "formData",
                        "required": false
                    },
                    {
                        "type": "integer",
                        "description": "Customer (defaults to the caller's)",
                        "name": "customerId",
                        "in": "formData",
                        "required": false
                    },
                    {
                        "type": "string",
                        "description": "cash, credit, bank or other",
                        "name": "paymentMode",
                        "in": "formData",
                        "required": false
                    },
                    {
                        "type": "string",
                        "description": "Sales only",
                        "name": "invoiceNumber",
                        "in": "formData",
                        "required": false
                    },
                    {
                        "type": "string",
                        "description": "Sales only",
                        "name": "TRNnumber",
                        "in": "formData",
                        "required": false
                    },
                    {
                        "type": "string",
                        "description": "Sales only",
                        "name": "companyName",
                        "in": "formData",
                        "required": false
                    },
                    {
                        "type": "string",
                        "description": "Sales only",
                        "name": "invoiceDate",
                        "in": "formData",
                        "required": false
                    },
                    {
                        "type": "string",
                        "description": "Sales only",
                        "name": "grossAmount",
                        "in": "formData",
                        "required": false
                    },
                    {
                        "type": "string",
                        "description": "Sales only",
                        "name": "VATtotal",
                        "in": "formData",
                        "required": false
                    },
                    {
                        "type": "string",
                        "description": "Sales only",
                        "name": "totalAmount",
                        "in": "formData",
                        "required": false
                    },
                    {
                        "type": "file",
                        "description": "Invoice image or PDF (repeatable)",
                        "name": "image",
                        "in": "formData",
                        "required": false
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "allOf": [
                                {
                                    "$ref": "#/definitions/handlers.Response"
                                },
                                {
                                    "type": "object",
                                    "properties": {
                                        "data": {
                                            "$ref": "#/definitions/ingest.BatchReport"
                                        }
                                    }
                                }
                            ]
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/handlers.Response"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/handlers.Response"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/handlers.Response"
                        }
                    },
                    "422": {
                        "description": "Unprocessable Entity",
                        "schema": {
                            "$ref": "#/definitions/handlers.Response"
                        }
                    },
                    "502": {
                        "description": "Bad Gateway",
                        "schema": {
                            "$ref": "#/definitions/handlers.Response"
                        }
                    }
                }
            }
        },
        "/documents/next-title": {
            "get": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "tags": [
                    "documents"
                ],
                "summary": "Suggest document title",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "allOf": [
                                {
                                    "$ref": "#/definitions/handlers.Response"
                                },
                                {
                                    "type": "object",
                                    "properties": {
                                        "data": {
                                            "type": "object",
                                            "additionalProperties": {
                                                "type": "string"
                                            }
                                        }
                                    }
                                }
                            ]
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/handlers.Response"
                        }
                    }
                }
            }
        },
        "/documents/{id}": {
            "get": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "tags": [
                    "documents"
                ],
                "summary": "Get document",
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "type": "integer",
                        "description": "Document ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "allOf": [
                                {
                                    "$ref": "#/definitions/handlers.Response"
                                },
                                {
                                    "type": "object",
                                    "properties": {
                                        "data": {
                                            "$ref": "#/definitions/ingest.DocumentDetail"
                                        }
                                    }
                                }
                            ]
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/handlers.Response"
                        }
                    }
                }
            },
            "patch": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "tags": [
                    "documents"
                ],
                "summary": "Update document",
                "produces": [
                    "application/json"
                ],
                "consumes": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "type": "integer",
                        "description": "Document ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    },
                    {
                        "description": "Fields to change",
                        "name": "document",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/models.DocumentUpdateInput"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "allOf": [
                                {
                                    "$ref": "#/definitions/handlers.Response"
                                },
                                {
                                    "type": "object",
                                    "properties": {
                                        "data": {
                                            "$ref": "#/definitions/models.Document"
                                        }
                                    }
                                }
                            ]
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/handlers.Response"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/handlers.Response"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/handlers.Response"
                        }
                    }
                }
            },
            "delete": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "tags": [
                    "documents"
                ],
                "summary": "Delete document",
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "type": "integer",
                        "description": "Document ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "204": {
                        "description": "No Content"
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/handlers.Response"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/handlers.Response"
                        }
                    }
                }
            }
        },
        "/documents/{id}/invoices": {
            "get": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "tags": [
                    "documents"
                ],
                "summary": "List document invoices",
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "type": "integer",
                        "description": "Document ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "allOf": [
                                {
                                    "$ref": "#/definitions/handlers.Response"
                                },
                                {
                                    "type": "object",
                                    "properties": {
                                        "data": {
                                            "type": "array",
                                            "items": {
                                                "$ref": "#/definitions/models.InvoiceData"
                                            }
                                        }
                                    }
                                }
                            ]
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/handlers.Response"
                        }
                    }
                }
            }
        },
        "/documents/{id}/status": {
            "patch": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "tags": [
                    "documents"
                ],
                "summary": "Change document payment status",
                "produces": [
                    "application/json"
                ],
                "consumes": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "type": "integer",
                        "description": "Document ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    },
                    {
                        "description": "pending, partial or paid",
                        "name": "status",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/models.DocumentStatusInput"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "allOf": [
                                {
                                    "$ref": "#/definitions/handlers.Response"
                                },
                                {
                                    "type": "object",
                                    "properties": {
                                        "data": {
                                            "$ref": "#/definitions/models.Document"
                                        }
                                    }
                                }
                            ]
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/handlers.Response"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/handlers.Response"
                        }
                    }
                }
            }
        },
        "/invoices/manual": {
            "post": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "tags": [
                    "invoices"
                ],
                "summary": "Create manual invoice",
                "produces": [
                    "application/json"
                ],
                "consumes": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "description": "Invoice contents",
                        "name": "invoice",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/models.ManualInvoiceInput"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "allOf": [
                                {
                                    "$ref": "#/definitions/handlers.Response"
                                },
                                {
                                    "type": "object",
                                    "properties": {
                                        "data": {
                                            "$ref": "#/definitions/ingest.Result"
                                        }
                                    }
                                }
                            ]
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/handlers.Response"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/handlers.Response"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/handlers.Response"
                        }
                    }
                }
            }
        },
        "/invoices/{id}": {
            "get": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "tags": [
                    "invoices"
                ],
                "summary": "Get invoice",
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "type": "integer",
                        "description": "Invoice ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "allOf": [
                                {
                                    "$ref": "#/definitions/handlers.Response"
                                },
                                {
                                    "type": "object",
                                    "properties": {
                                        "data": {
                                            "$ref": "#/definitions/ingest.InvoiceDetail"
                                        }
                                    }
                                }
                            ]
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/handlers.Response"
                        }
                    }
                }
            },
            "patch": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "tags": [
                    "invoices"
                ],
                "summary": "Update invoice",
                "produces": [
                    "application/json"
                ],
                "consumes": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "type": "integer",
                        "description": "Invoice ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    },
                    {
                        "description": "Fields to change",
                        "name": "invoice",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/models.InvoiceUpdateInput"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "allOf": [
                                {
                                    "$ref": "#/definitions/handlers.Response"
                                },
                                {
                                    "type": "object",
                                    "properties": {
                                        "data": {
                                            "$ref": "#/definitions/models.InvoiceData"
                                        }
                                    }
                                }
                            ]
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/handlers.Response"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/handlers.Response"
                        }
                    }
                }
            },
            "delete": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "tags": [
                    "invoices"
                ],
                "summary": "Delete invoice",
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "type": "integer",
                        "description": "Invoice ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "204": {
                        "description": "No Content"
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/handlers.Response"
                        }
                    }
                }
            }
        },
        "/invoices/{id}/status": {
            "patch": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "tags": [
                    "invoices"
                ],
                "summary": "Change invoice status",
                "produces": [
                    "application/json"
                ],
                "consumes": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "type": "integer",
                        "description": "Invoice ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    },
                    {
                        "description": "Status and ledger",
                        "name": "status",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/models.InvoiceStatusInput"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "allOf": [
                                {
                                    "$ref": "#/definitions/handlers.Response"
                                },
                                {
                                    "type": "object",
                                    "properties": {
                                        "data": {
                                            "$ref": "#/definitions/models.InvoiceData"
                                        }
                                    }
                                }
                            ]
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/handlers.Response"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/handlers.Response"
                        }
                    }
                }
            }
        },
        "/ledgers": {
            "get": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "tags": [
                    "ledgers"
                ],
                "summary": "List ledgers",
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "type": "string",
                        "description": "Search by name",
                        "name": "search",
                        "in": "query"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "allOf": [
                                {
                                    "$ref": "#/definitions/handlers.Response"
                                },
                                {
                                    "type": "object",
                                    "properties": {
                                        "data": {
                                            "type": "array",
                                            "items": {
                                                "$ref": "#/definitions/models.Ledger"
                                            }
                                        }
                                    }
                                }
                            ]
                        }
                    }
                }
            },
            "post": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "tags": [
                    "ledgers"
                ],
                "summary": "Create ledger",
                "produces": [
                    "application/json"
                ],
                "consumes": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "description": "Ledger contents",
                        "name": "ledger",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/models.LedgerInput"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "allOf": [
                                {
                                    "$ref": "#/definitions/handlers.Response"
                                },
                                {
                                    "type": "object",
                                    "properties": {
                                        "data": {
                                            "$ref": "#/definitions/models.Ledger"
                                        }
                                    }
                                }
                            ]
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/handlers.Response"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/handlers.Response"
                        }
                    }
                }
            }
        },
        "/ledgers/{id}": {
            "delete": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "tags": [
                    "ledgers"
                ],
                "summary": "Delete ledger",
                "produces": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "type": "integer",
                        "description": "Ledger ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "204": {
                        "description": "No Content"
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/handlers.Response"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/handlers.Response"
                        }
                    }
                }
            },
            "patch": {
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "description": "Replace the name and description of a ledger.",
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "ledgers"
                ],
                "summary": "Update ledger",
                "parameters": [
                    {
                        "type": "integer",
                        "description": "Ledger ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    },
                    {
                        "description": "Ledger contents",
                        "name": "ledger",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/models.LedgerInput"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "allOf": [
                                {
                                    "$ref": "#/definitions/handlers.Response"
                                },
                                {
                                    "type": "object",
                                    "properties": {
                                        "data": {
                                            "$ref": "#/definitions/models.Ledger"
                                        }
                                    }
                                }
                            ]
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/handlers.Response"
                        }
                    },
                    "404": {
                        "description": "Not Found",
                        "schema": {
                            "$ref": "#/definitions/handlers.Response"
                        }
                    },
                    "409": {
                        "description": "Conflict",
                        "schema": {
                            "$ref": "#/definitions/handlers.Response"
                        }
                    }
                }
            }
        }
    },
    "definitions": {
        "handlers.Response": {
            "type": "object",
            "properties": {
                "data": {},
                "error": {
                    "type": "string"
                },
                "kind": {
                    "type": "string"
                }
            }
        },
        "models.Document": {
            "type": "object",
            "properties": {
                "id": {
                    "type": "integer"
                },
                "document_number": {
                    "type": "string"
                },
                "title": {
                    "type": "string"
                },
                "description": {
                    "type": "string"
                },
                "document_type": {
                    "type": "string"
                },
                "customer_id": {
                    "type": "integer"
                },
                "payment_status": {
                    "type": "string"
                },
                "uploaded_by": {
                    "type": "string"
                },
                "updated_by": {
                    "type": "string"
                },
                "created_at": {
                    "type": "string"
                },
                "updated_at": {
                    "type": "string"
                },
                "gross_amount": {
                    "type": "string",
                    "example": "0"
                },
                "total_amount": {
                    "type": "string",
                    "example": "0"
                },
                "total_vat": {
                    "type": "string",
                    "example": "0"
                },
                "number_of_uploaded_files": {
                    "type": "integer"
                }
            }
        },
        "models.InvoiceData": {
            "type": "object",
            "properties": {
                "invoice_number": {
                    "type": "string"
                },
                "trn_number": {
                    "type": "string"
                },
                "company_name": {
                    "type": "string"
                },
                "invoice_date": {
                    "type": "string"
                },
                "gross_amount": {
                    "type": "string",
                    "example": "0"
                },
                "vat_total": {
                    "type": "string",
                    "example": "0"
                },
                "total_amount": {
                    "type": "string",
                    "example": "0"
                },
                "id": {
                    "type": "integer"
                },
                "document_id": {
                    "type": "integer"
                },
                "image_url": {
                    "type": "string"
                },
                "file_type": {
                    "type": "string"
                },
                "bill_type": {
                    "type": "string"
                },
                "bill_status": {
                    "type": "string"
                },
                "ledger_id": {
                    "type": "integer"
                },
                "payment_mode": {
                    "type": "string"
                },
                "duplicate_status": {
                    "type": "boolean"
                },
                "status_updated_by": {
                    "type": "string"
                },
                "updated_by": {
                    "type": "string"
                },
                "customer_id": {
                    "type": "integer"
                },
                "created_at": {
                    "type": "string"
                },
                "updated_at": {
                    "type": "string"
                },
                "ledger": {
                    "type": "string"
                }
            }
        },
        "models.DocumentUpdateInput": {
            "type": "object",
            "properties": {
                "title": {
                    "type": "string"
                },
                "description": {
                    "type": "string"
                },
                "document_type": {
                    "type": "string"
                },
                "customer_id": {
                    "type": "integer"
                }
            }
        },
        "models.DocumentStatusInput": {
            "type": "object",
            "properties": {
                "payment_status": {
                    "type": "string"
                }
            }
        },
        "models.ManualInvoiceInput": {
            "type": "object",
            "properties": {
                "invoice_number": {
                    "type": "string"
                },
                "trn_number": {
                    "type": "string"
                },
                "company_name": {
                    "type": "string"
                },
                "invoice_date": {
                    "type": "string"
                },
                "gross_amount": {
                    "type": "string",
                    "example": "0"
                },
                "vat_total": {
                    "type": "string",
                    "example": "0"
                },
                "total_amount": {
                    "type": "string",
                    "example": "0"
                },
                "document_id": {
                    "type": "integer"
                },
                "customer_id": {
                    "type": "integer"
                },
                "document_type": {
                    "type": "string"
                },
                "title": {
                    "type": "string"
                },
                "description": {
                    "type": "string"
                },
                "payment_mode": {
                    "type": "string"
                }
            }
        },
        "models.InvoiceUpdateInput": {
            "type": "object",
            "properties": {
                "invoice_number": {
                    "type": "string"
                },
                "trn_number": {
                    "type": "string"
                },
                "company_name": {
                    "type": "string"
                },
                "invoice_date": {
                    "type": "string"
                },
                "gross_amount": {
                    "type": "string",
                    "example": "0"
                },
                "vat_total": {
                    "type": "string",
                    "example": "0"
                },
                "total_amount": {
                    "type": "string",
                    "example": "0"
                },
                "payment_mode": {
                    "type": "string"
                }
            }
        },
        "models.InvoiceStatusInput": {
            "type": "object",
            "properties": {
                "bill_status": {
                    "type": "string"
                },
                "ledger_id": {
                    "type": "integer"
                }
            }
        },
        "models.Ledger": {
            "type": "object",
            "properties": {
                "id": {
                    "type": "integer"
                },
                "name": {
                    "type": "string"
                },
                "description": {
                    "type": "string"
                },
                "created_by": {
                    "type": "string"
                },
                "updated_by": {
                    "type": "string"
                },
                "created_at": {
                    "type": "string"
                },
                "updated_at": {
                    "type": "string"
                }
            }
        },
        "models.LedgerInput": {
            "type": "object",
            "properties": {
                "name": {
                    "type": "string"
                },
                "description": {
                    "type": "string"
                }
            }
        },
        "ingest.Result": {
            "type": "object",
            "properties": {
                "document": {
                    "$ref": "#/definitions/models.Document"
                },
                "invoice": {
                    "$ref": "#/definitions/models.InvoiceData"
                },
                "created": {
                    "type": "boolean"
                },
                "aggregates_stale": {
                    "type": "boolean"
                }
            }
        },
        "ingest.DocumentDetail": {
            "type": "object",
            "properties": {
                "id": {
                    "type": "integer"
                },
                "document_number": {
                    "type": "string"
                },
                "title": {
                    "type": "string"
                },
                "description": {
                    "type": "string"
                },
                "document_type": {
                    "type": "string"
                },
                "customer_id": {
                    "type": "integer"
                },
                "payment_status": {
                    "type": "string"
                },
                "uploaded_by": {
                    "type": "string"
                },
                "updated_by": {
                    "type": "string"
                },
                "created_at": {
                    "type": "string"
                },
                "updated_at": {
                    "type": "string"
                },
                "gross_amount": {
                    "type": "string",
                    "example": "0"
                },
                "total_amount": {
                    "type": "string",
                    "example": "0"
                },
                "total_vat": {
                    "type": "string",
                    "example": "0"
                },
                "number_of_uploaded_files": {
                    "type": "integer"
                },
                "invoices": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/models.InvoiceData"
                    }
                }
            }
        },
        "ingest.InvoiceDetail": {
            "type": "object",
            "properties": {
                "invoice_number": {
                    "type": "string"
                },
                "trn_number": {
                    "type": "string"
                },
                "company_name": {
                    "type": "string"
                },
                "invoice_date": {
                    "type": "string"
                },
                "gross_amount": {
                    "type": "string",
                    "example": "0"
                },
                "vat_total": {
                    "type": "string",
                    "example": "0"
                },
                "total_amount": {
                    "type": "string",
                    "example": "0"
                },
                "id": {
                    "type": "integer"
                },
                "document_id": {
                    "type": "integer"
                },
                "image_url": {
                    "type": "string"
                },
                "file_type": {
                    "type": "string"
                },
                "bill_type": {
                    "type": "string"
                },
                "bill_status": {
                    "type": "string"
                },
                "ledger_id": {
                    "type": "integer"
                },
                "payment_mode": {
                    "type": "string"
                },
                "duplicate_status": {
                    "type": "boolean"
                },
                "status_updated_by": {
                    "type": "string"
                },
                "updated_by": {
                    "type": "string"
                },
                "customer_id": {
                    "type": "integer"
                },
                "created_at": {
                    "type": "string"
                },
                "updated_at": {
                    "type": "string"
                },
                "ledger": {
                    "type": "string"
                },
                "document": {
                    "type": "object",
                    "properties": {
                        "id": {
                            "type": "integer"
                        },
                        "title": {
                            "type": "string"
                        },
                        "document_type": {
                            "type": "string"
                        },
                        "payment_status": {
                            "type": "string"
                        }
                    }
                }
            }
        },
        "ingest.FileReport": {
            "type": "object",
            "properties": {
                "index": {
                    "type": "integer"
                },
                "filename": {
                    "type": "string"
                },
                "ok": {
                    "type": "boolean"
                },
                "document_id": {
                    "type": "integer"
                },
                "invoice_id": {
                    "type": "integer"
                },
                "duplicate": {
                    "type": "boolean"
                },
                "aggregates_stale": {
                    "type": "boolean"
                },
                "error_kind": {
                    "type": "string"
                },
                "error": {
                    "type": "string"
                },
                "invoice": {
                    "$ref": "#/definitions/models.InvoiceData"
                }
            }
        },
        "ingest.BatchReport": {
            "type": "object",
            "properties": {
                "document_id": {
                    "type": "integer"
                },
                "document": {
                    "$ref": "#/definitions/models.Document"
                },
                "succeeded": {
                    "type": "integer"
                },
                "failed": {
                    "type": "integer"
                },
                "files": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/ingest.FileReport"
                    }
                }
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Invoice Desk API",
	Description:      "API for uploading invoices, extracting their fields and reviewing the resulting documents.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
