package polymarket

// DTOs raw de la API de Polymarket. Solo se usan dentro de este paquete.
// La conversión a domain entities se hace en mapping.go.

// --- CLOB API ---

// clobMarket es la respuesta de GET /markets/{condition_id}.
type clobMarket struct {
	ConditionID string      `json:"condition_id"`
	MarketSlug  string      `json:"market_slug"`
	Tokens      []clobToken `json:"tokens"`
	Active      bool        `json:"active"`
	Closed      bool        `json:"closed"`
}

// clobToken representa un token (Up/Down) en el CLOB.
type clobToken struct {
	TokenID string  `json:"token_id"`
	Outcome string  `json:"outcome"`
	Price   float64 `json:"price"`
	Winner  bool    `json:"winner"`
}

// orderBookRequest es el body del POST /books batch.
type orderBookRequest struct {
	TokenID string `json:"token_id"`
}

// orderBookResponse es la respuesta de un item en POST /books.
type orderBookResponse struct {
	Market  string         `json:"market"`
	AssetID string         `json:"asset_id"`
	Bids    []bookEntryRaw `json:"bids"`
	Asks    []bookEntryRaw `json:"asks"`
}

// bookEntryRaw es un nivel de precio raw de la API (strings para mayor precisión).
type bookEntryRaw struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// --- Gamma API ---

// gammaMarket es un elemento de GET /markets?slug=... en Gamma.
// clobTokenIds y outcomes llegan como arrays JSON serializados en un string.
type gammaMarket struct {
	ConditionID    string `json:"conditionId"`
	Question       string `json:"question"`
	Slug           string `json:"slug"`
	StartDate      string `json:"startDate"`
	EndDate        string `json:"endDate"`
	EventStartTime string `json:"eventStartTime"`
	ClobTokenIDs   string `json:"clobTokenIds"`
	Outcomes       string `json:"outcomes"`
	Active         bool   `json:"active"`
	Closed         bool   `json:"closed"`
}

// --- WebSocket market channel ---

// wsSubscribe es el mensaje de suscripción al canal market.
// Tras conectar, los cambios de suscripción usan Operation en lugar de Type.
type wsSubscribe struct {
	AssetsIDs []string `json:"assets_ids"`
	Type      string   `json:"type,omitempty"`
	Operation string   `json:"operation,omitempty"`
}

// wsEvent cubre los eventos "book" y "price_change" del canal market.
type wsEvent struct {
	EventType    string          `json:"event_type"`
	AssetID      string          `json:"asset_id"`
	Market       string          `json:"market"`
	Bids         []bookEntryRaw  `json:"bids"`
	Asks         []bookEntryRaw  `json:"asks"`
	PriceChanges []wsPriceChange `json:"price_changes"`
	Timestamp    string          `json:"timestamp"`
}

// wsPriceChange trae el mejor ask actualizado de un asset.
type wsPriceChange struct {
	AssetID string `json:"asset_id"`
	BestAsk string `json:"best_ask"`
}
