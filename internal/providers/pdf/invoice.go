package pdf

import (
	"context"
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

type InvoiceData struct {
	CompanyName    string
	CompanyAddress string
	CompanyEmail   string
	InvoiceNumber  string
	IssueDate      string
	DueDate        string
	Status         string

	BillToName  string
	BillToEmail string

	Items []InvoiceItem

	Subtotal  string
	AmountDue string
	Total     string
}

type InvoiceItem struct {
	Description string
	Qty         int64
	UnitPrice   string
	Amount      string
}

type MarotoProvider struct{}

func New() Provider {
	return &MarotoProvider{}
}

func (p *MarotoProvider) GenerateInvoice(ctx context.Context, invoice InvoiceData) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(10,
		text.NewCol(12, "Invoice", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	m.AddRow(20,
		col.New(6).Add(
			text.New("Invoice number: "+invoice.InvoiceNumber, props.Text{Top: 0}),
			text.New("Date of issue: "+invoice.IssueDate, props.Text{Top: 4}),
			text.New("Date due: "+invoice.DueDate, props.Text{Top: 8}),
			text.New("Status: "+invoice.Status, props.Text{Top: 12}),
		),
		col.New(6),
	)

	m.AddRow(30,
		col.New(6).Add(
			text.New(invoice.CompanyName, props.Text{Style: fontstyle.Bold}),
			text.New(invoice.CompanyAddress, props.Text{Top: 5}),
			text.New(invoice.CompanyEmail, props.Text{Top: 15}),
		),
		col.New(6).Add(
			text.New("Bill to", props.Text{Style: fontstyle.Bold}),
			text.New(invoice.BillToName, props.Text{Top: 5}),
			text.New(invoice.BillToEmail, props.Text{Top: 15}),
		),
	)

	m.AddRow(10,
		text.NewCol(6, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Qty", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Unit price", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	for _, item := range invoice.Items {
		m.AddRow(10,
			text.NewCol(6, item.Description, props.Text{Size: 9}),
			text.NewCol(2, fmt.Sprintf("%d", item.Qty), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, item.UnitPrice, props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, item.Amount, props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Subtotal", props.Text{Size: 9}),
		text.NewCol(2, invoice.Subtotal, props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Total", props.Text{Size: 9}),
		text.NewCol(2, invoice.Total, props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Amount due", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, invoice.AmountDue, props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}
