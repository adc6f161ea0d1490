package domain

import "strconv"

// OrderBook representa el libro de órdenes de un token.
type OrderBook struct {
	TokenID string
	Bids    []BookEntry // ordenados mayor a menor precio
	Asks    []BookEntry // ordenados menor a mayor precio
}

// BookEntry es un nivel de precio en el orderbook.
type BookEntry struct {
	Price float64
	Size  float64
}

// BestAsk devuelve el mejor precio de venta (menor ask).
// Devuelve 0 si el book está vacío, que el motor interpreta como "sin cotización".
func (ob OrderBook) BestAsk() float64 {
	if len(ob.Asks) == 0 {
		return 0
	}
	return ob.Asks[0].Price
}

// ParsePrice convierte un string de precio a float64.
// Usado en el mapping de la API.
func ParsePrice(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
