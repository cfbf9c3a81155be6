package railapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/trainseat/matrix/internal/model"
)

var testAuth = model.AuthCredentials{Token: "test-token", DeviceKey: "test-device"}

func TestFetchTrainData_DecodesRoute(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/train-routes" {
			t.Errorf("path = %s, want /train-routes", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		// halt arrives as a bare number on some stops and a string on others
		w.Write([]byte(`{"data":{"train_name":"SUNDARBAN EXPRESS","days":["Mon","Tue"],
			"total_duration":"09:15",
			"routes":[
				{"city":"Dhaka","departure_time":"08:15 am BST","halt":"---"},
				{"city":"Jashore","arrival_time":"03:40 pm BST","departure_time":"03:44 pm BST","halt":4},
				{"city":"Khulna","arrival_time":"05:30 pm BST","halt":"0"}
			]}}`))
	}))
	defer ts.Close()

	c := NewClient(ts.URL)
	data, err := c.FetchTrainData(context.Background(), "726", "2025-07-01")
	if err != nil {
		t.Fatalf("FetchTrainData: %v", err)
	}
	if data.TrainName != "SUNDARBAN EXPRESS" {
		t.Errorf("TrainName = %q, want SUNDARBAN EXPRESS", data.TrainName)
	}
	if len(data.Routes) != 3 {
		t.Fatalf("len(Routes) = %d, want 3", len(data.Routes))
	}
	if got := string(data.Routes[1].Halt); got != "4" {
		t.Errorf("numeric halt decoded as %q, want \"4\"", got)
	}
	if got := string(data.Routes[0].Halt); got != "---" {
		t.Errorf("string halt decoded as %q, want \"---\"", got)
	}
}

func TestFetchTrainData_NoData(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":null}`))
	}))
	defer ts.Close()

	data, err := NewClient(ts.URL).FetchTrainData(context.Background(), "726", "2025-07-01")
	if err != nil {
		t.Fatalf("FetchTrainData: %v", err)
	}
	if data != nil {
		t.Errorf("data = %+v, want nil for empty payload", data)
	}
}

func TestFetchTrip_SendsAuthAndQuery(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q, want Bearer test-token", got)
		}
		if got := r.Header.Get("x-device-key"); got != "test-device" {
			t.Errorf("x-device-key = %q, want test-device", got)
		}
		q := r.URL.Query()
		if q.Get("from_city") != "Dhaka" || q.Get("to_city") != "Khulna" {
			t.Errorf("cities = %q→%q, want Dhaka→Khulna", q.Get("from_city"), q.Get("to_city"))
		}
		if q.Get("date_of_journey") != "01-Jul-2025" {
			t.Errorf("date_of_journey = %q, want 01-Jul-2025", q.Get("date_of_journey"))
		}
		if q.Get("seat_class") != "SHULOV" {
			t.Errorf("seat_class = %q, want SHULOV", q.Get("seat_class"))
		}
		w.Write([]byte(`{"data":{"trains":[
			{"train_model":726,"seat_types":[
				{"type":"AC_B","fare":"1000","vat_amount":150,"seat_counts":{"online":3,"offline":1}}
			]}
		]}}`))
	}))
	defer ts.Close()

	trains, err := NewClient(ts.URL).FetchTrip(context.Background(), "Dhaka", "Khulna", "01-Jul-2025", DefaultSeatClass, testAuth)
	if err != nil {
		t.Fatalf("FetchTrip: %v", err)
	}
	if len(trains) != 1 {
		t.Fatalf("len(trains) = %d, want 1", len(trains))
	}
	if got := string(trains[0].TrainModel); got != "726" {
		t.Errorf("TrainModel = %q, want \"726\"", got)
	}
	st := trains[0].SeatTypes[0]
	if float64(st.Fare) != 1000 || float64(st.VatAmount) != 150 {
		t.Errorf("fare/vat = %v/%v, want 1000/150", st.Fare, st.VatAmount)
	}
	if st.SeatCounts.Online != 3 || st.SeatCounts.Offline != 1 {
		t.Errorf("seat counts = %+v, want online 3 offline 1", st.SeatCounts)
	}
}

func TestClassify_RateLimitUsesServerMessage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"messages":["Rate limit exceeded"]}}`))
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL).FetchTrainData(context.Background(), "726", "2025-07-01")
	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("err = %v, want *RateLimitError", err)
	}
	if rl.Message != "Rate limit exceeded" {
		t.Errorf("message = %q, want server-provided text", rl.Message)
	}
	if !IsRetryable(err) {
		t.Errorf("IsRetryable = false, want true")
	}
}

func TestClassify_RateLimitDefaultMessage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL).FetchTrainData(context.Background(), "726", "2025-07-01")
	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("err = %v, want *RateLimitError", err)
	}
	if rl.Message != "Too many requests. Please slow down." {
		t.Errorf("message = %q, want the default throttle text", rl.Message)
	}
}

func TestClassify_AuthPhrases(t *testing.T) {
	cases := []struct {
		name string
		code int
		body string
		want error
	}{
		{"expired token", 401, `{"error":{"messages":["Invalid User Access Token!"]}}`, ErrTokenExpired},
		{"not authorized", 401, `{"error":{"messages":["You are not authorized"]}}`, ErrDeviceKeyExpired},
		{"login first", 401, `{"error":{"messages":["Please login first"]}}`, ErrDeviceKeyExpired},
		{"unknown 401", 401, `{"error":{"messages":["nope"]}}`, ErrTokenExpired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.code)
				w.Write([]byte(tc.body))
			}))
			defer ts.Close()

			_, err := NewClient(ts.URL).FetchTrip(context.Background(), "Dhaka", "Khulna", "01-Jul-2025", DefaultSeatClass, testAuth)
			if !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
			if !IsAuth(err) {
				t.Errorf("IsAuth = false, want true")
			}
			if IsRetryable(err) {
				t.Errorf("IsRetryable = true, want false for auth errors")
			}
		})
	}
}

func TestClassify_HighTraffic403(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL).FetchTrip(context.Background(), "Dhaka", "Khulna", "01-Jul-2025", DefaultSeatClass, testAuth)
	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("err = %v, want *RateLimitError", err)
	}
	if rl.Message != "Currently we are experiencing high traffic. Please try again after some time." {
		t.Errorf("message = %q", rl.Message)
	}
}

func TestDo_RetriesOnceOn5xx(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"data":{"train_name":"X","days":[],"routes":[]}}`))
	}))
	defer ts.Close()

	data, err := NewClient(ts.URL).FetchTrainData(context.Background(), "726", "2025-07-01")
	if err != nil {
		t.Fatalf("FetchTrainData after one 5xx: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if data.TrainName != "X" {
		t.Errorf("TrainName = %q, want X", data.TrainName)
	}
}

func TestDo_5xxExhaustion(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL).FetchTrainData(context.Background(), "726", "2025-07-01")
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("err = %v, want ErrBackendUnavailable", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want exactly 2 attempts", calls)
	}
}

func TestClassify_OtherStatusKeepsCode(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL).FetchTrainData(context.Background(), "726", "2025-07-01")
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *StatusError", err)
	}
	if se.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", se.StatusCode)
	}
	if IsRetryable(err) || IsAuth(err) {
		t.Errorf("plain status errors must be neither retryable nor auth")
	}
}
