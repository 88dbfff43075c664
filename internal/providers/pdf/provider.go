// Package pdf renders invoice documents.
package pdf

import "context"

type Provider interface {
	GenerateInvoice(ctx context.Context, data InvoiceData) ([]byte, error)
}

// NoOpProvider satisfies Provider without producing output. Used in tests
// and when PDF rendering is disabled.
type NoOpProvider struct{}

func (p *NoOpProvider) GenerateInvoice(ctx context.Context, data InvoiceData) ([]byte, error) {
	return nil, nil
}
