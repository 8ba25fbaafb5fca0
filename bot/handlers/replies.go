package handlers

import (
	"fmt"
	"strings"

	contractx "github.com/tanakritw/pizzabot/bot/contract"
)

func catalogReply(products []contractx.Product) contractx.Reply {
	rows := make([][]contractx.Button, 0, len(products)+1)
	for _, p := range products {
		rows = append(rows, []contractx.Button{{Label: p.Name, Data: "item:" + p.ID}})
	}
	rows = append(rows, []contractx.Button{{Label: "My cart", Data: "cart"}})

	return contractx.Reply{Text: "Please choose:", Buttons: rows}
}

func itemReply(p contractx.Product) contractx.Reply {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", p.Name)
	fmt.Fprintf(&b, "Price: %s\n\n", p.PriceFormatted)
	b.WriteString(p.Description)

	return contractx.Reply{
		Text: b.String(),
		Buttons: [][]contractx.Button{
			{{Label: "Add to cart", Data: "add:" + p.ID}},
			{{Label: "Back", Data: "back"}},
			{{Label: "Cart", Data: "cart"}},
		},
	}
}

func cartReply(cart contractx.Cart) contractx.Reply {
	if len(cart.Lines) == 0 {
		return contractx.Reply{
			Text: "Your cart is empty.",
			Buttons: [][]contractx.Button{
				{{Label: "Menu", Data: "menu"}},
			},
		}
	}

	var b strings.Builder
	rows := make([][]contractx.Button, 0, len(cart.Lines)+2)
	for _, line := range cart.Lines {
		fmt.Fprintf(&b, "%s\n%s\n%d in cart for %s\n\n", line.Name, line.Description, line.Quantity, line.TotalFormatted)
		rows = append(rows, []contractx.Button{{
			Label: "Remove " + line.Name,
			Data:  "remove:" + line.LineID,
		}})
	}
	fmt.Fprintf(&b, "Total: %s", cart.TotalFormatted)

	rows = append(rows,
		[]contractx.Button{{Label: "Menu", Data: "menu"}},
		[]contractx.Button{{Label: "Pay", Data: "pay"}},
	)

	return contractx.Reply{Text: b.String(), Buttons: rows}
}
