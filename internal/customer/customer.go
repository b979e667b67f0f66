package customer

import (
	"strings"
	"sync"
)

// Data holds everything a visitor has told us about themselves during the
// session: checkout form fields, product interest, purchase state. It is
// merged into the lead record whenever a subscription is captured.
type Data struct {
	Name                string  `json:"customer_name,omitempty"`
	Phone               string  `json:"customer_phone,omitempty"`
	CPF                 string  `json:"customer_cpf,omitempty"`
	Email               string  `json:"customer_email,omitempty"`
	AddressStreet       string  `json:"customer_address_street,omitempty"`
	AddressNumber       string  `json:"customer_address_number,omitempty"`
	AddressComplement   string  `json:"customer_address_complement,omitempty"`
	AddressNeighborhood string  `json:"customer_address_neighborhood,omitempty"`
	AddressCity         string  `json:"customer_address_city,omitempty"`
	AddressState        string  `json:"customer_address_state,omitempty"`
	AddressZipCode      string  `json:"customer_address_zip_code,omitempty"`
	InterestedProduct   string  `json:"interested_product,omitempty"`
	HasMadePurchase     bool    `json:"has_made_purchase,omitempty"`
	PurchaseAmount      float64 `json:"purchase_amount,omitempty"`
}

// Merge overlays non-empty fields from other onto d. Boolean purchase
// state only flips forward: once a purchase happened it stays recorded.
func (d *Data) Merge(other Data) {
	if other.Name != "" {
		d.Name = other.Name
	}
	if other.Phone != "" {
		d.Phone = other.Phone
	}
	if other.CPF != "" {
		d.CPF = other.CPF
	}
	if other.Email != "" {
		d.Email = other.Email
	}
	if other.AddressStreet != "" {
		d.AddressStreet = other.AddressStreet
	}
	if other.AddressNumber != "" {
		d.AddressNumber = other.AddressNumber
	}
	if other.AddressComplement != "" {
		d.AddressComplement = other.AddressComplement
	}
	if other.AddressNeighborhood != "" {
		d.AddressNeighborhood = other.AddressNeighborhood
	}
	if other.AddressCity != "" {
		d.AddressCity = other.AddressCity
	}
	if other.AddressState != "" {
		d.AddressState = other.AddressState
	}
	if other.AddressZipCode != "" {
		d.AddressZipCode = other.AddressZipCode
	}
	if other.InterestedProduct != "" {
		d.InterestedProduct = other.InterestedProduct
	}
	if other.HasMadePurchase {
		d.HasMadePurchase = true
	}
	if other.PurchaseAmount > 0 {
		d.PurchaseAmount = other.PurchaseAmount
	}
}

// QualityScore derives the lead quality score (1-5) from field presence,
// the same scale the persistence layer uses.
func (d *Data) QualityScore() int {
	score := 1
	if d.Name != "" {
		score++
	}
	if d.Phone != "" {
		score++
	}
	if d.AddressStreet != "" && d.AddressCity != "" && d.AddressState != "" {
		score++
	}
	if d.HasMadePurchase {
		score++
	}
	if score > 5 {
		score = 5
	}
	return score
}

// HasCompleteData reports whether the visitor filled the core contact
// fields (name, phone and a full address).
func (d *Data) HasCompleteData() bool {
	return d.Name != "" && d.Phone != "" &&
		d.AddressStreet != "" && d.AddressCity != "" && d.AddressState != ""
}

// FirstName returns the first word of the customer name, used for
// message personalization.
func (d *Data) FirstName() string {
	name := strings.TrimSpace(d.Name)
	if name == "" {
		return ""
	}
	if i := strings.IndexByte(name, ' '); i > 0 {
		return name[:i]
	}
	return name
}

// Store keeps the session's customer data. Safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	data Data
}

func NewStore() *Store {
	return &Store{}
}

// Update merges the given fields into the stored data.
func (s *Store) Update(d Data) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Merge(d)
}

// Get returns a copy of the current data.
func (s *Store) Get() Data {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data
}

// MarkPurchase records a completed purchase with its amount.
func (s *Store) MarkPurchase(amount float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.HasMadePurchase = true
	if amount > 0 {
		s.data.PurchaseAmount = amount
	}
}

// Clear drops all stored data. Called when the session ends.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = Data{}
}
