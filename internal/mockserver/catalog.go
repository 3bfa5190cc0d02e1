package mockserver

import "github.com/launchcart/widgets/internal/cart"

// Product is a catalog entry with its unit price in cents.
type Product struct {
	cart.Product
	Price int `json:"price"`
}

// Catalog returns the static product list the mock store sells.
func Catalog() []Product {
	return []Product{
		{Product: cart.Product{ID: "mug", Name: "Launch Mug", Description: "12oz ceramic, dishwasher safe", Images: []string{"/static/mug.png"}}, Price: 1500},
		{Product: cart.Product{ID: "tee", Name: "Launch Tee", Description: "Heavyweight cotton, unisex fit", Images: []string{"/static/tee.png"}}, Price: 2800},
		{Product: cart.Product{ID: "stickers", Name: "Sticker Pack", Description: "Six vinyl stickers"}, Price: 600},
		{Product: cart.Product{ID: "cap", Name: "Dad Cap", Description: "Embroidered logo, adjustable strap"}, Price: 2400},
		{Product: cart.Product{ID: "tote", Name: "Canvas Tote", Description: "Natural canvas, long handles"}, Price: 1900},
	}
}

// seedProducts are put in every new cart so a fresh session has something
// to show.
var seedProducts = []string{"mug", "stickers"}

func findProduct(id string) (Product, bool) {
	for _, p := range Catalog() {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}
