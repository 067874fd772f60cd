package searchapi

// Role of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one prior conversation turn sent as context.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is the body of a search call. Query is either the user's own words
// or an address framed as an analysis request.
type Request struct {
	Query       string    `json:"query"`
	ChatHistory []Message `json:"chatHistory"`
}

// Listing is one property returned by the search service. Coordinates are
// pointers so a missing value is distinguishable from zero.
type Listing struct {
	ID           string   `json:"id"`
	Address      string   `json:"address"`
	City         string   `json:"city"`
	State        string   `json:"state"`
	ZipCode      string   `json:"zipCode"`
	Price        float64  `json:"price"`
	Bedrooms     int      `json:"bedrooms"`
	Bathrooms    float64  `json:"bathrooms"`
	SquareFeet   int      `json:"squareFeet"`
	PropertyType string   `json:"propertyType"`
	ImageURL     string   `json:"imageUrl,omitempty"`
	URL          string   `json:"url,omitempty"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
}

// HasCoordinates reports whether both coordinates are present.
func (l Listing) HasCoordinates() bool {
	return l.Latitude != nil && l.Longitude != nil
}

// Response is the search service answer.
type Response struct {
	Listings []Listing `json:"listings"`
	Summary  string    `json:"summary"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
