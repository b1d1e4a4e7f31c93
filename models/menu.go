package models

// MenuItem is a sellable product. Quantity is remaining stock and only
// decreases through order placement; TotalSold only increases through it.
type MenuItem struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Category  string `json:"category"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
	TotalSold int    `json:"totalSold"`
	ImageURL  string `json:"imageUrl,omitempty"`
}

type CategoryColor struct {
	Category string `json:"category"`
	Color    string `json:"color"`
}
