// ABOUTME: Tests for the provider HTTP client against an httptest server
// ABOUTME: Covers pagination, error classification, retries, enrichment, and campaign listing
package apollo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpchacon09/APOLLO/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	base := []Option{
		WithBaseURL(srv.URL),
		WithPacing(0),
		WithBackoff(BackoffPolicy{MaxAttempts: 3, Delay: time.Millisecond}),
	}
	return New("test-key", append(base, opts...)...)
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}

func TestFetchEventsPaginatesUntilEmptyPage(t *testing.T) {
	var (
		mu    sync.Mutex
		pages []int
	)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, messagesSearchPath, r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		assert.Equal(t, http.MethodPost, r.Method)

		body := decodeBody(t, r)
		assert.Equal(t, "ana@example.com", body["email_address"])
		assert.EqualValues(t, 2, body["per_page"])

		page := int(body["page"].(float64))
		mu.Lock()
		pages = append(pages, page)
		mu.Unlock()

		switch page {
		case 1:
			fmt.Fprint(w, `{"emailer_messages":[
				{"id":"m1","to_email":"Ana@Example.com","status":"sent","step_number":1,"subject":"Hola",
				 "created_at":"2024-03-01T10:00:00.000+00:00","emailer_campaign":{"id":"c1","name":"Q1"}},
				{"id":"m2","to_email":"ana@example.com","status":"opened","step_number":"2","type":"linkedin_step_message",
				 "created_at":"2024-03-02T10:00:00Z","emailer_campaign_id":"c1"}
			]}`)
		case 2:
			fmt.Fprint(w, `{"emailer_messages":[
				{"status":"replied","emailer_step":{"id":"s3","position":3},"created_at":"2024-03-03T10:00:00Z",
				 "sent_at":"2024-03-03T11:00:00Z","account":{"name":"Acme"}}
			]}`)
		default:
			fmt.Fprint(w, `{"emailer_messages":[]}`)
		}
	}, WithPageSize(2))

	events, err := client.FetchEvents(context.Background(), "ana@example.com")
	require.NoError(t, err)

	mu.Lock()
	assert.Equal(t, []int{1, 2, 3}, pages)
	mu.Unlock()
	require.Len(t, events, 3)

	assert.Equal(t, "m1", events[0].ID)
	assert.Equal(t, "ana@example.com", events[0].RecipientEmail)
	assert.Equal(t, "c1", events[0].SequenceID)
	assert.Equal(t, "Q1", events[0].SequenceName)
	assert.Equal(t, 1, events[0].StepNumber)
	assert.Equal(t, models.EventSent, events[0].Status)
	assert.Equal(t, models.ChannelEmail, events[0].Channel)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), events[0].CreatedAt)

	assert.Equal(t, 2, events[1].StepNumber)
	assert.Equal(t, models.ChannelLinkedIn, events[1].Channel)
	assert.Equal(t, "c1", events[1].SequenceID)

	assert.Equal(t, 3, events[2].StepNumber, "falls back to emailer_step position")
	assert.Equal(t, "ana@example.com", events[2].RecipientEmail, "falls back to queried email")
	assert.NotEmpty(t, events[2].ID, "missing id gets generated")
	assert.Equal(t, "Acme", events[2].Account)
	require.NotNil(t, events[2].SentAt)
}

func TestFetchEventsStopsAtTotalPages(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"emailer_messages":[{"id":"x","status":"sent"}],"pagination":{"page":1,"total_pages":1}}`)
	})

	events, err := client.FetchEvents(context.Background(), "ana@example.com")
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.EqualValues(t, 1, calls.Load())
}

func TestFetchEventsStopsAtPageCap(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"emailer_messages":[{"status":"sent"}]}`)
	}, WithMaxPages(4))

	events, err := client.FetchEvents(context.Background(), "ana@example.com")
	require.NoError(t, err)
	assert.Len(t, events, 4)
	assert.EqualValues(t, 4, calls.Load())
}

func TestRateLimitedIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.FetchEvents(context.Background(), "ana@example.com")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindRateLimited))
	assert.True(t, errors.Is(err, ErrRateLimited))
	assert.EqualValues(t, 1, calls.Load())
}

func TestServerErrorRetriedThenExhausted(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.FetchEvents(context.Background(), "ana@example.com")
	require.Error(t, err)

	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, KindTransient, perr.Kind)
	assert.True(t, perr.Exhausted)
	assert.Equal(t, 3, perr.Attempts)
	assert.Equal(t, http.StatusBadGateway, perr.Status)
	assert.EqualValues(t, 3, calls.Load())
}

func TestTransientThenSuccess(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"emailer_messages":[]}`)
	})

	events, err := client.FetchEvents(context.Background(), "ana@example.com")
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.EqualValues(t, 2, calls.Load())
}

func TestClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"error":"bad email"}`)
	})

	_, err := client.FetchEvents(context.Background(), "not-an-email")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindPermanent))
	assert.Contains(t, err.Error(), "bad email")
	assert.EqualValues(t, 1, calls.Load())
}

func TestMalformedJSONIsPermanent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"emailer_messages": [`)
	})

	_, err := client.FetchEvents(context.Background(), "ana@example.com")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindPermanent))
}

func TestRequestTimeoutIsTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		fmt.Fprint(w, `{"emailer_messages":[]}`)
	}, WithTimeout(5*time.Millisecond), WithBackoff(BackoffPolicy{MaxAttempts: 1}))

	_, err := client.FetchEvents(context.Background(), "ana@example.com")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindTransient))
}

func TestCancelledContextAborts(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"emailer_messages":[]}`)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.FetchEvents(ctx, "ana@example.com")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestMatchPerson(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, peopleMatchPath, r.URL.Path)
		body := decodeBody(t, r)
		assert.Equal(t, "ana@example.com", body["email"])
		fmt.Fprint(w, `{"person":{
			"id":"p1","first_name":"Ana","last_name":"Pérez","title":"CEO",
			"linkedin_url":"https://linkedin.com/in/ana",
			"phone_numbers":[{"sanitized_number":"+573001112233"}],
			"organization":{"name":"Acme"},
			"active_sequences":[{"emailer_campaign_id":"c9","name":"Q2","current_step_number":2}]
		}}`)
	})

	person, err := client.MatchPerson(context.Background(), "ana@example.com")
	require.NoError(t, err)
	require.NotNil(t, person)

	assert.Equal(t, "Ana Pérez", person.Name)
	assert.Equal(t, "CEO", person.Title)
	assert.Equal(t, "+573001112233", person.Phone)
	assert.Equal(t, "Acme", person.OrganizationName)
	assert.Equal(t, "c9", person.SequenceID)
	assert.Equal(t, 2, person.StepNumber)
}

func TestMatchPersonNoMatch(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"person":null}`)
	})

	person, err := client.MatchPerson(context.Background(), "ghost@example.com")
	require.NoError(t, err)
	assert.Nil(t, person)
}

func TestListCampaigns(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, campaignsSearchPath, r.URL.Path)
		body := decodeBody(t, r)
		switch int(body["page"].(float64)) {
		case 1:
			fmt.Fprint(w, `{"emailer_campaigns":[{"id":"c1","name":"Q1"},{"id":"c2","name":"Q2"}],"pagination":{"total_pages":2}}`)
		default:
			fmt.Fprint(w, `{"emailer_campaigns":[{"id":"c3","name":"Q3"}],"pagination":{"total_pages":2}}`)
		}
	})

	campaigns, err := client.ListCampaigns(context.Background())
	require.NoError(t, err)
	require.Len(t, campaigns, 3)
	assert.Equal(t, "c3", campaigns[2].ID)
	assert.Equal(t, "Q3", campaigns[2].Name)
}

func TestPacingSpacesCalls(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"person":null}`)
	}, WithPacing(30*time.Millisecond))

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := client.MatchPerson(context.Background(), "ana@example.com")
		require.NoError(t, err)
	}
	// The first call passes immediately, the next two wait one interval each.
	assert.GreaterOrEqual(t, time.Since(start), 55*time.Millisecond)
	assert.EqualValues(t, 3, calls.Load())
}
