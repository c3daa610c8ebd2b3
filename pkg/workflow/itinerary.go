package workflow

// Itinerary is the final structured travel guide produced by Replan.
type Itinerary struct {
	Destination       string           `json:"destination" jsonschema:"description=destination city"`
	TravelDates       string           `json:"travel_dates" jsonschema:"description=date range of the trip"`
	Duration          int              `json:"duration" jsonschema:"description=number of days"`
	Summary           string           `json:"summary" jsonschema:"description=one paragraph overview"`
	Transportation    *Transportation  `json:"transportation,omitempty"`
	Accommodation     []Hotel          `json:"accommodation,omitempty"`
	Weather           []Weather        `json:"weather,omitempty"`
	Attractions       []POI            `json:"attractions,omitempty"`
	Restaurants       []POI            `json:"restaurants,omitempty"`
	BarsNightlife     []POI            `json:"bars_nightlife,omitempty"`
	Shopping          []POI            `json:"shopping,omitempty"`
	DailyItinerary    []DayPlan        `json:"daily_itinerary,omitempty"`
	BudgetBreakdown   *BudgetBreakdown `json:"budget_breakdown,omitempty"`
	Tips              []string         `json:"tips,omitempty"`
	EmergencyContacts []string         `json:"emergency_contacts,omitempty"`
}

type Transportation struct {
	Outbound        []TrainTicket  `json:"outbound,omitempty"`
	ReturnTrip      []TrainTicket  `json:"return_trip,omitempty"`
	OutboundFlights []FlightTicket `json:"outbound_flights,omitempty"`
	ReturnFlights   []FlightTicket `json:"return_flights,omitempty"`
	LocalTransport  string         `json:"local_transport,omitempty"`
}

type TrainTicket struct {
	TrainNo            string `json:"train_no"`
	FromStation        string `json:"from_station"`
	ToStation          string `json:"to_station"`
	DepartureTime      string `json:"departure_time"`
	ArrivalTime        string `json:"arrival_time"`
	Duration           string `json:"duration,omitempty"`
	SecondClassPrice   string `json:"second_class_price,omitempty"`
	FirstClassPrice    string `json:"first_class_price,omitempty"`
	BusinessClassPrice string `json:"business_class_price,omitempty"`
}

type FlightTicket struct {
	FlightNo      string `json:"flight_no"`
	FromAirport   string `json:"from_airport"`
	ToAirport     string `json:"to_airport"`
	DepartureTime string `json:"departure_time"`
	ArrivalTime   string `json:"arrival_time"`
	Duration      string `json:"duration,omitempty"`
	Price         string `json:"price,omitempty"`
	SeatType      string `json:"seat_type,omitempty"`
}

type Hotel struct {
	HotelName        string   `json:"hotel_name"`
	HotelStar        string   `json:"hotel_star,omitempty"`
	Address          string   `json:"address,omitempty"`
	PricePerNight    string   `json:"price_per_night,omitempty"`
	Rating           string   `json:"rating,omitempty"`
	Facilities       []string `json:"facilities,omitempty"`
	DistanceToCenter string   `json:"distance_to_center,omitempty"`
}

// POI is an attraction, restaurant, bar or shop.
type POI struct {
	Name              string `json:"name"`
	Type              string `json:"type" jsonschema:"description=attraction or restaurant or bar or shopping"`
	Address           string `json:"address,omitempty"`
	OpeningHours      string `json:"opening_hours,omitempty"`
	Rating            string `json:"rating,omitempty"`
	AvgCost           string `json:"avg_cost,omitempty"`
	Description       string `json:"description,omitempty"`
	DistanceFromHotel string `json:"distance_from_hotel,omitempty"`
	TransportTime     string `json:"transport_time,omitempty"`
	TransportCost     string `json:"transport_cost,omitempty"`
}

type Weather struct {
	Date            string `json:"date"`
	WeatherDesc     string `json:"weather_desc"`
	TemperatureHigh string `json:"temperature_high,omitempty"`
	TemperatureLow  string `json:"temperature_low,omitempty"`
	Wind            string `json:"wind,omitempty"`
}

type DayPlan struct {
	Day       int      `json:"day"`
	Date      string   `json:"date"`
	Morning   string   `json:"morning,omitempty"`
	Afternoon string   `json:"afternoon,omitempty"`
	Evening   string   `json:"evening,omitempty"`
	Meals     []string `json:"meals,omitempty"`
	POIs      []POI    `json:"pois,omitempty"`
}

type BudgetBreakdown struct {
	Transportation string `json:"transportation,omitempty"`
	Accommodation  string `json:"accommodation,omitempty"`
	Meals          string `json:"meals,omitempty"`
	Attractions    string `json:"attractions,omitempty"`
	Entertainment  string `json:"entertainment,omitempty"`
	Shopping       string `json:"shopping,omitempty"`
	Contingency    string `json:"contingency,omitempty"`
	Total          string `json:"total"`
}
