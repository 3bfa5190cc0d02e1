package cart

// Product is the catalog entry a cart line refers to.
type Product struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Images      []string `json:"images"`
}

// Item is one cart line. Price is the unit price in cents.
type Item struct {
	ID       string  `json:"id"`
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
	Price    int     `json:"price"`
}

// Cart is the server-computed cart. Total is in cents and is never
// recomputed on the client.
type Cart struct {
	Items []Item `json:"items"`
	Total int    `json:"total"`
}

// ItemCount is the number of units across all lines.
func (c Cart) ItemCount() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

// Snapshot is the synced state of a cart topic.
type Snapshot struct {
	Cart *Cart `json:"cart"`
}

// Phase is the widget's lifecycle state.
type Phase int

const (
	Idle Phase = iota
	Populated
	CheckingOut
	Completed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Populated:
		return "populated"
	case CheckingOut:
		return "checking out"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

// View is everything a rendering surface needs.
type View struct {
	Phase Phase
	Cart  Cart
	// Confirmation is raised by checkout_complete and stays up until
	// dismissed.
	Confirmation bool
	// RedirectURL is the last checkout address handed to the navigator.
	RedirectURL string
}

// ItemCount is the badge count shown next to the cart.
func (v View) ItemCount() int { return v.Cart.ItemCount() }
