package travel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FlightOffer is one priced flight option.
type FlightOffer struct {
	Price    string          `json:"price"`
	Currency string          `json:"currency"`
	Segments []FlightSegment `json:"segments"`
}

type FlightSegment struct {
	Carrier   string `json:"carrier"`
	Number    string `json:"number"`
	Origin    string `json:"origin"`
	Departure string `json:"departure"`
	Dest      string `json:"destination"`
	Arrival   string `json:"arrival"`
}

type token struct {
	mu        sync.Mutex
	value     string
	expiresAt time.Time
}

type amadeusTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type amadeusOffersResponse struct {
	Data []struct {
		Price struct {
			Total    string `json:"total"`
			Currency string `json:"currency"`
		} `json:"price"`
		Itineraries []struct {
			Segments []struct {
				CarrierCode string `json:"carrierCode"`
				Number      string `json:"number"`
				Departure   struct {
					IataCode string `json:"iataCode"`
					At       string `json:"at"`
				} `json:"departure"`
				Arrival struct {
					IataCode string `json:"iataCode"`
					At       string `json:"at"`
				} `json:"arrival"`
			} `json:"segments"`
		} `json:"itineraries"`
	} `json:"data"`
}

// SearchFlights queries the Amadeus flight offers API. origin and
// destination are IATA airport codes; departureDate is YYYY-MM-DD.
func (s *Service) SearchFlights(ctx context.Context, origin, destination, departureDate string, adults int) ([]FlightOffer, error) {
	if s.amadeusKey == "" || s.amadeusSecret == "" {
		return nil, fmt.Errorf("flight search not configured")
	}
	if adults <= 0 {
		adults = 1
	}

	accessToken, err := s.amadeusAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	query := url.Values{
		"originLocationCode":      {strings.ToUpper(origin)},
		"destinationLocationCode": {strings.ToUpper(destination)},
		"departureDate":           {departureDate},
		"adults":                  {strconv.Itoa(adults)},
		"currencyCode":            {"NOK"},
		"max":                     {"10"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.amadeusAPIBase+"/v2/shopping/flight-offers?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("flight search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("flight search: status %d", resp.StatusCode)
	}

	var offers amadeusOffersResponse
	if err := json.NewDecoder(resp.Body).Decode(&offers); err != nil {
		return nil, fmt.Errorf("flight search: decode: %w", err)
	}

	var out []FlightOffer
	for _, data := range offers.Data {
		offer := FlightOffer{
			Price:    data.Price.Total,
			Currency: data.Price.Currency,
		}
		for _, itinerary := range data.Itineraries {
			for _, segment := range itinerary.Segments {
				offer.Segments = append(offer.Segments, FlightSegment{
					Carrier:   segment.CarrierCode,
					Number:    segment.Number,
					Origin:    segment.Departure.IataCode,
					Departure: segment.Departure.At,
					Dest:      segment.Arrival.IataCode,
					Arrival:   segment.Arrival.At,
				})
			}
		}
		out = append(out, offer)
	}
	return out, nil
}

// amadeusAccessToken returns a cached OAuth token, refreshing it via the
// client-credentials grant when expired.
func (s *Service) amadeusAccessToken(ctx context.Context) (string, error) {
	s.amadeusToken.mu.Lock()
	defer s.amadeusToken.mu.Unlock()

	if s.amadeusToken.value != "" && time.Now().Before(s.amadeusToken.expiresAt) {
		return s.amadeusToken.value, nil
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {s.amadeusKey},
		"client_secret": {s.amadeusSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.amadeusAPIBase+"/v1/security/oauth2/token",
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("flight auth: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("flight auth: status %d", resp.StatusCode)
	}

	var tokenResp amadeusTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("flight auth: decode: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("flight auth: empty token")
	}

	s.amadeusToken.value = tokenResp.AccessToken
	// Refresh a minute early to avoid using a token at its expiry edge.
	s.amadeusToken.expiresAt = time.Now().Add(time.Duration(tokenResp.ExpiresIn)*time.Second - time.Minute)
	return s.amadeusToken.value, nil
}
