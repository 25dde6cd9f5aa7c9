package pagination

import "testing"

func TestNewOffsetRequest_Defaults(t *testing.T) {
	tests := []struct {
		name         string
		page, size   int
		wantPage     int
		wantPageSize int
	}{
		{"valid", 2, 25, 2, 25},
		{"zero page", 0, 25, 1, 25},
		{"negative page", -1, 25, 1, 25},
		{"zero size", 3, 0, 3, DefaultLimit},
		{"oversized", 1, 500, 1, DefaultLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewOffsetRequest(tt.page, tt.size)
			if r.GetPage() != tt.wantPage {
				t.Errorf("GetPage() = %d; want %d", r.GetPage(), tt.wantPage)
			}
			if r.GetPageSize() != tt.wantPageSize {
				t.Errorf("GetPageSize() = %d; want %d", r.GetPageSize(), tt.wantPageSize)
			}
		})
	}
}

func TestOffsetRequest_GetOffset(t *testing.T) {
	r := NewOffsetRequest(3, 20)
	if got := r.GetOffset(); got != 40 {
		t.Errorf("GetOffset() = %d; want 40", got)
	}
}

func TestBuildOffsetResponse(t *testing.T) {
	req := NewOffsetRequest(2, 10)
	items := []string{"a", "b", "c"}

	resp := BuildOffsetResponse(items, req, 23)

	if resp.TotalPages != 3 {
		t.Errorf("TotalPages = %d; want 3", resp.TotalPages)
	}
	if !resp.HasNext {
		t.Error("expected HasNext on page 2 of 3")
	}
	if !resp.HasPrev {
		t.Error("expected HasPrev on page 2")
	}
	if resp.TotalItems != 23 {
		t.Errorf("TotalItems = %d; want 23", resp.TotalItems)
	}
}
