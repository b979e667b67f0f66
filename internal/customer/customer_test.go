package customer

import "testing"

func TestMerge_OverlaysNonEmpty(t *testing.T) {
	d := Data{Name: "Maria", Phone: "11 99999-0000"}
	d.Merge(Data{Name: "Maria Silva", AddressCity: "São Paulo"})

	if d.Name != "Maria Silva" {
		t.Fatalf("name = %s", d.Name)
	}
	if d.Phone != "11 99999-0000" {
		t.Fatal("empty incoming field must not erase existing data")
	}
	if d.AddressCity != "São Paulo" {
		t.Fatalf("city = %s", d.AddressCity)
	}
}

func TestMerge_PurchaseOnlyFlipsForward(t *testing.T) {
	d := Data{HasMadePurchase: true, PurchaseAmount: 63.3}
	d.Merge(Data{})
	if !d.HasMadePurchase {
		t.Fatal("purchase state must survive empty merge")
	}
	if d.PurchaseAmount != 63.3 {
		t.Fatalf("amount = %v", d.PurchaseAmount)
	}
}

func TestQualityScore(t *testing.T) {
	tests := []struct {
		name string
		data Data
		want int
	}{
		{"bare subscription", Data{}, 1},
		{"name only", Data{Name: "Maria"}, 2},
		{"name and phone", Data{Name: "Maria", Phone: "11 9"}, 3},
		{"partial address does not count", Data{Name: "Maria", Phone: "11 9", AddressStreet: "Rua A"}, 3},
		{"full contact", Data{Name: "Maria", Phone: "11 9", AddressStreet: "Rua A", AddressCity: "SP", AddressState: "SP"}, 4},
		{"buyer with everything", Data{Name: "Maria", Phone: "11 9", AddressStreet: "Rua A", AddressCity: "SP", AddressState: "SP", HasMadePurchase: true}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.data.QualityScore(); got != tt.want {
				t.Fatalf("score = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestHasCompleteData(t *testing.T) {
	d := Data{Name: "Maria", Phone: "11 9", AddressStreet: "Rua A", AddressCity: "SP", AddressState: "SP"}
	if !d.HasCompleteData() {
		t.Fatal("expected complete")
	}
	d.Phone = ""
	if d.HasCompleteData() {
		t.Fatal("expected incomplete without phone")
	}
}

func TestFirstName(t *testing.T) {
	tests := []struct {
		full string
		want string
	}{
		{"Maria Silva Santos", "Maria"},
		{"João", "João"},
		{"  Ana Costa ", "Ana"},
		{"", ""},
	}
	for _, tt := range tests {
		d := Data{Name: tt.full}
		if got := d.FirstName(); got != tt.want {
			t.Errorf("FirstName(%q) = %q, want %q", tt.full, got, tt.want)
		}
	}
}

func TestStore_UpdateAndMarkPurchase(t *testing.T) {
	s := NewStore()
	s.Update(Data{Name: "Maria Silva"})
	s.MarkPurchase(149.9)

	got := s.Get()
	if got.Name != "Maria Silva" || !got.HasMadePurchase || got.PurchaseAmount != 149.9 {
		t.Fatalf("got = %+v", got)
	}

	s.Clear()
	if s.Get().Name != "" {
		t.Fatal("clear should drop data")
	}
}
