package nav

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

func testRegistry(opener Opener) *Registry {
	return NewRegistry([]Link{
		{Name: "Pricing", URL: "https://example.com/pricing"},
		{Name: "Docs", URL: "https://example.com/docs", OpenInNewTab: true},
	}, opener, nil)
}

func TestRedirectToPage_Resolves(t *testing.T) {
	var opened []string
	r := testRegistry(OpenerFunc(func(ctx context.Context, link Link) error {
		opened = append(opened, link.URL)
		return nil
	}))

	result, err := r.RedirectToPage(context.Background(), "pricing")
	if err != nil {
		t.Fatal(err)
	}
	if result != "Navigating to Pricing..." {
		t.Errorf("result = %q", result)
	}
	if len(opened) != 1 || opened[0] != "https://example.com/pricing" {
		t.Errorf("opened = %v", opened)
	}
}

func TestRedirectToPage_UnknownTarget(t *testing.T) {
	r := testRegistry(nil)

	result, err := r.RedirectToPage(context.Background(), "checkout")
	if err != nil {
		t.Fatal(err)
	}
	if result != `Error: "checkout" not found in registry` {
		t.Errorf("result = %q", result)
	}
}

func TestRedirectToPage_AlreadyOnPage(t *testing.T) {
	r := testRegistry(nil)

	if _, err := r.RedirectToPage(context.Background(), "Pricing"); err != nil {
		t.Fatal(err)
	}
	result, err := r.RedirectToPage(context.Background(), "PRICING")
	if err != nil {
		t.Fatal(err)
	}
	if result != "Already on Pricing." {
		t.Errorf("result = %q", result)
	}
}

func TestRedirectToPage_NewTabDoesNotChangeCurrent(t *testing.T) {
	r := testRegistry(nil)

	if _, err := r.RedirectToPage(context.Background(), "docs"); err != nil {
		t.Fatal(err)
	}
	result, _ := r.RedirectToPage(context.Background(), "docs")
	if result != "Navigating to Docs..." {
		t.Errorf("new-tab navigation must be repeatable, got %q", result)
	}
}

func TestRedirectToPage_OpenerFailure(t *testing.T) {
	r := testRegistry(OpenerFunc(func(ctx context.Context, link Link) error {
		return fmt.Errorf("host rejected")
	}))

	result, err := r.RedirectToPage(context.Background(), "pricing")
	if err != nil {
		t.Fatal(err)
	}
	if result != "Error: could not navigate to Pricing" {
		t.Errorf("result = %q", result)
	}
}

type fakeSource struct {
	mu     sync.Mutex
	starts int
	stops  int
	emit   func(string)
}

func (f *fakeSource) Start(emit func(string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	f.emit = emit
}

func (f *fakeSource) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.emit = nil
}

func (f *fakeSource) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}

func (f *fakeSource) fire(location string) {
	f.mu.Lock()
	emit := f.emit
	f.mu.Unlock()
	if emit != nil {
		emit(location)
	}
}

func TestLocationListeners_RefCountedSource(t *testing.T) {
	l := NewLocationListeners()
	src := &fakeSource{}
	l.SetSource(src)

	if starts, _ := src.counts(); starts != 0 {
		t.Error("source started without subscribers")
	}

	unsubA := l.Subscribe(func(string) {})
	unsubB := l.Subscribe(func(string) {})

	if starts, _ := src.counts(); starts != 1 {
		t.Errorf("starts = %d, want 1 for two subscribers", starts)
	}

	unsubA()
	if _, stops := src.counts(); stops != 0 {
		t.Error("source stopped while a subscriber remains")
	}

	unsubB()
	if _, stops := src.counts(); stops != 1 {
		t.Error("source not stopped after last unsubscribe")
	}

	// Double unsubscribe is harmless.
	unsubB()
	if _, stops := src.counts(); stops != 1 {
		t.Error("double unsubscribe stopped the source again")
	}
}

func TestLocationListeners_FanOut(t *testing.T) {
	l := NewLocationListeners()
	src := &fakeSource{}
	l.SetSource(src)

	var mu sync.Mutex
	var got []string
	unsub := l.Subscribe(func(location string) {
		mu.Lock()
		got = append(got, location)
		mu.Unlock()
	})
	defer unsub()

	src.fire("/pricing")
	src.fire("/docs")

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != "/pricing" || got[1] != "/docs" {
		t.Errorf("got = %v", got)
	}
}

func TestLocationListeners_SourceInstalledAfterSubscribe(t *testing.T) {
	l := NewLocationListeners()
	unsub := l.Subscribe(func(string) {})
	defer unsub()

	src := &fakeSource{}
	l.SetSource(src)
	if starts, _ := src.counts(); starts != 1 {
		t.Error("late-installed source must start for existing subscribers")
	}
}
