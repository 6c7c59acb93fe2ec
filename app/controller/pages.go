package controller

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/labstack/echo/v4"
)

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
</head>
<body>
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
{{- if .TransactionID}}
<dl>
<dt>Transaction ID</dt><dd>{{.TransactionID}}</dd>
{{- if .GatewayTransactionID}}
<dt>CHIP Transaction ID</dt><dd>{{.GatewayTransactionID}}</dd>
{{- end}}
{{- if .Reason}}
<dt>Reason</dt><dd>{{.Reason}}</dd>
{{- end}}
</dl>
{{- end}}
{{- if .BackURL}}
<p><a href="{{.BackURL}}">Go Back</a></p>
{{- end}}
</body>
</html>
`))

type page struct {
	Title                string
	Message              string
	TransactionID        string
	GatewayTransactionID string
	Reason               string
	BackURL              string
}

func renderPage(ctx echo.Context, statusCode int, p page) error {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, p); err != nil {
		return ctx.String(http.StatusInternalServerError, "internal server error")
	}
	return ctx.HTMLBlob(statusCode, buf.Bytes())
}

func failurePage(transactionID, gatewayTransactionID, reason, backURL string) page {
	return page{
		Title:                "Payment failed",
		Message:              "Your donation could not be completed.",
		TransactionID:        transactionID,
		GatewayTransactionID: gatewayTransactionID,
		Reason:               reason,
		BackURL:              backURL,
	}
}

func pendingPage(transactionID string) page {
	return page{
		Title:         "Payment processing",
		Message:       "Your payment is still being processed. Reload this page in a moment to see the result.",
		TransactionID: transactionID,
	}
}

func errorPage(title, message string) page {
	return page{Title: title, Message: message}
}
