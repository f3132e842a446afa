package sweep

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sejf-plikow/internal/database"
	"sejf-plikow/internal/storage"
)

// Pamięciowa atrapa magazynu metadanych. Mutacje są warunkowe tak jak w
// Postgresie: usunięcie nieistniejącego wiersza i powtórne ustawienie flagi
// zwracają false, nie błąd.
type fakeStore struct {
	mu        sync.Mutex
	rows      map[int64]*database.ExpiryCandidate
	findErr   error
	deleteErr map[int64]error
	markErr   map[int64]error
	events    []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rows:      make(map[int64]*database.ExpiryCandidate),
		deleteErr: make(map[int64]error),
		markErr:   make(map[int64]error),
	}
}

func (f *fakeStore) addRow(id, userID int64, filename string, expiry time.Time, notified bool) {
	f.rows[id] = &database.ExpiryCandidate{
		FileID:           id,
		UserID:           userID,
		Filename:         filename,
		Locator:          fmt.Sprintf("/data/user_%d/%s", userID, filename),
		ExpiryTime:       expiry,
		NotificationSent: notified,
		UserEmail:        fmt.Sprintf("user%d@example.com", userID),
	}
}

func (f *fakeStore) FindExpiryCandidates(ctx context.Context, now time.Time, lookback time.Duration) ([]database.ExpiryCandidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}

	cutoff := now.Add(-lookback)
	var out []database.ExpiryCandidate
	for _, row := range f.rows {
		if row.ExpiryTime.After(cutoff) {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiryTime.Before(out[j].ExpiryTime) })
	return out, nil
}

func (f *fakeStore) DeleteFileByID(ctx context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.deleteErr[id]; err != nil {
		return false, err
	}
	if _, ok := f.rows[id]; !ok {
		return false, nil
	}
	delete(f.rows, id)
	return true, nil
}

func (f *fakeStore) MarkNotificationSent(ctx context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.markErr[id]; err != nil {
		return false, err
	}
	row, ok := f.rows[id]
	if !ok || row.NotificationSent {
		return false, nil
	}
	row.NotificationSent = true
	return true, nil
}

func (f *fakeStore) LogEvent(ctx context.Context, userID int64, eventType string, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
	return nil
}

// Pamięciowa atrapa magazynu blobów z możliwością wstrzyknięcia błędu Delete.
type fakeBlobs struct {
	mu        sync.Mutex
	objects   map[string]struct{}
	deleteErr map[string]error
	deleteCnt map[string]int
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{
		objects:   make(map[string]struct{}),
		deleteErr: make(map[string]error),
		deleteCnt: make(map[string]int),
	}
}

func blobKey(ownerID int64, name string) string {
	return fmt.Sprintf("%d/%s", ownerID, name)
}

func (f *fakeBlobs) put(ownerID int64, name string) {
	f.objects[blobKey(ownerID, name)] = struct{}{}
}

func (f *fakeBlobs) Save(ctx context.Context, ownerID int64, name string, data io.Reader, size int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := blobKey(ownerID, name)
	f.objects[key] = struct{}{}
	return key, nil
}

func (f *fakeBlobs) Open(ctx context.Context, ownerID int64, name string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[blobKey(ownerID, name)]; !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(strings.NewReader("")), nil
}

func (f *fakeBlobs) Delete(ctx context.Context, ownerID int64, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := blobKey(ownerID, name)
	f.deleteCnt[key]++
	if err := f.deleteErr[key]; err != nil {
		return err
	}
	delete(f.objects, key)
	return nil
}

func (f *fakeBlobs) Exists(ctx context.Context, ownerID int64, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[blobKey(ownerID, name)]
	return ok, nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeNotifier) Notify(ctx context.Context, address, filename string, expiryTime time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, fmt.Sprintf("%s:%s", address, filename))
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSweeper(store *fakeStore, blobs *fakeBlobs, n *fakeNotifier) *Sweeper {
	return New(store, blobs, n, 24*time.Hour, testLogger())
}

func TestRunDeletesExpiredFiles(t *testing.T) {
	store := newFakeStore()
	blobs := newFakeBlobs()
	notif := &fakeNotifier{}

	now := time.Now().UTC()
	store.addRow(1, 10, "wygasly.txt", now.Add(-time.Minute), true)
	store.addRow(2, 10, "aktualny.txt", now.Add(30*24*time.Hour), false)
	blobs.put(10, "wygasly.txt")
	blobs.put(10, "aktualny.txt")

	result, err := newTestSweeper(store, blobs, notif).Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, result.Deleted)
	require.Equal(t, 0, result.Notified)
	require.Equal(t, 0, result.Errors)

	// Blob i wiersz wygasłego pliku znikają, aktualny plik zostaje nietknięty
	_, gone := store.rows[1]
	require.False(t, gone)
	require.NotContains(t, blobs.objects, blobKey(10, "wygasly.txt"))
	require.Contains(t, blobs.objects, blobKey(10, "aktualny.txt"))
	require.Contains(t, store.events, database.EventFileExpired)
}

func TestRunSendsWarningOnce(t *testing.T) {
	store := newFakeStore()
	blobs := newFakeBlobs()
	notif := &fakeNotifier{}

	now := time.Now().UTC()
	// W oknie ostrzeżeń (12h do wygaśnięcia), jeszcze nie powiadomiony
	store.addRow(1, 10, "wkrotce.txt", now.Add(12*time.Hour), false)

	sweeper := newTestSweeper(store, blobs, notif)

	result, err := sweeper.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Notified)
	require.Len(t, notif.sent, 1)
	require.Equal(t, "user10@example.com:wkrotce.txt", notif.sent[0])
	require.True(t, store.rows[1].NotificationSent)
	require.Contains(t, store.events, database.EventExpiryNoticeSent)

	// Drugi przebieg nie wysyła drugiego ostrzeżenia
	result, err = sweeper.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, result.Notified)
	require.Len(t, notif.sent, 1)
}

func TestRunSkipsRecordsOutsideWarningWindow(t *testing.T) {
	store := newFakeStore()
	blobs := newFakeBlobs()
	notif := &fakeNotifier{}

	now := time.Now().UTC()
	// Poza horyzontem ostrzeżeń: 30h przy 24h wyprzedzenia
	store.addRow(1, 10, "za_wczesnie.txt", now.Add(30*time.Hour), false)
	// Już powiadomiony, jeszcze nie wygasł
	store.addRow(2, 10, "juz_powiadomiony.txt", now.Add(6*time.Hour), true)

	result, err := newTestSweeper(store, blobs, notif).Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 0, result.Deleted)
	require.Equal(t, 0, result.Notified)
	require.Equal(t, 0, result.Errors)
	require.Empty(t, notif.sent)
	require.False(t, store.rows[1].NotificationSent)
}

func TestRunIsIdempotent(t *testing.T) {
	store := newFakeStore()
	blobs := newFakeBlobs()
	notif := &fakeNotifier{}

	now := time.Now().UTC()
	store.addRow(1, 10, "wygasly.txt", now.Add(-time.Hour), true)
	store.addRow(2, 10, "wkrotce.txt", now.Add(10*time.Hour), false)
	blobs.put(10, "wygasly.txt")

	sweeper := newTestSweeper(store, blobs, notif)

	first, err := sweeper.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, first.Deleted)
	require.Equal(t, 1, first.Notified)

	// Kolejny przebieg nie znajduje już żadnej pracy
	second, err := sweeper.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, second.Deleted)
	require.Equal(t, 0, second.Notified)
	require.Equal(t, 0, second.Errors)
}

func TestRunKeepsRowWhenBlobDeleteFails(t *testing.T) {
	store := newFakeStore()
	blobs := newFakeBlobs()
	notif := &fakeNotifier{}

	now := time.Now().UTC()
	store.addRow(1, 10, "niedostepny.txt", now.Add(-time.Minute), true)
	blobs.put(10, "niedostepny.txt")
	blobs.deleteErr[blobKey(10, "niedostepny.txt")] = errors.New("connection refused")

	sweeper := newTestSweeper(store, blobs, notif)

	result, err := sweeper.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, result.Deleted)
	require.Equal(t, 1, result.Errors)
	require.Len(t, result.ErrorDetails, 1)
	require.Contains(t, result.ErrorDetails[0], "blob delete failed")

	// Wiersz przetrwał, więc następny przebieg ponowi próbę
	require.Contains(t, store.rows, int64(1))

	// Backend wrócił do życia: ponowny przebieg kończy sprzątanie
	delete(blobs.deleteErr, blobKey(10, "niedostepny.txt"))
	result, err = sweeper.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Deleted)
	require.NotContains(t, store.rows, int64(1))
}

func TestRunTreatsMissingBlobAsDeleted(t *testing.T) {
	store := newFakeStore()
	blobs := newFakeBlobs()
	notif := &fakeNotifier{}

	now := time.Now().UTC()
	// Wiersz bez bloba, np. po częściowo udanym poprzednim przebiegu
	store.addRow(1, 10, "osierocony.txt", now.Add(-time.Minute), true)

	result, err := newTestSweeper(store, blobs, notif).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Deleted)
	require.Equal(t, 0, result.Errors)
	require.NotContains(t, store.rows, int64(1))
	require.Equal(t, 1, blobs.deleteCnt[blobKey(10, "osierocony.txt")])
}

func TestRunKeepsFlagUnsetWhenNotifyFails(t *testing.T) {
	store := newFakeStore()
	blobs := newFakeBlobs()
	notif := &fakeNotifier{err: errors.New("smtp: 451 temporary failure")}

	now := time.Now().UTC()
	store.addRow(1, 10, "wkrotce.txt", now.Add(10*time.Hour), false)

	sweeper := newTestSweeper(store, blobs, notif)

	result, err := sweeper.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, result.Notified)
	require.Equal(t, 1, result.Errors)
	require.False(t, store.rows[1].NotificationSent, "A failed send must not flip the flag")

	// Po naprawie transportu ostrzeżenie wychodzi przy następnym przebiegu
	notif.err = nil
	result, err = sweeper.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Notified)
	require.True(t, store.rows[1].NotificationSent)
}

func TestRunCapsErrorDetails(t *testing.T) {
	store := newFakeStore()
	blobs := newFakeBlobs()
	notif := &fakeNotifier{}

	now := time.Now().UTC()
	for i := int64(1); i <= 8; i++ {
		name := fmt.Sprintf("plik_%d.txt", i)
		store.addRow(i, 10, name, now.Add(-time.Minute), true)
		blobs.put(10, name)
		blobs.deleteErr[blobKey(10, name)] = errors.New("backend down")
	}

	result, err := newTestSweeper(store, blobs, notif).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 8, result.Errors)
	require.Len(t, result.ErrorDetails, maxErrorDetails, "Error details are capped, the count is not")
}

func TestRunFailsWhenWindowQueryFails(t *testing.T) {
	store := newFakeStore()
	store.findErr = errors.New("connection reset by peer")

	result, err := newTestSweeper(store, newFakeBlobs(), &fakeNotifier{}).Run(context.Background())
	require.Error(t, err)
	require.Nil(t, result)
	require.Contains(t, err.Error(), "failed to query expiry candidates")
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	store := newFakeStore()
	blobs := newFakeBlobs()
	notif := &fakeNotifier{}

	now := time.Now().UTC()
	for i := int64(1); i <= 5; i++ {
		name := fmt.Sprintf("plik_%d.txt", i)
		store.addRow(i, 10, name, now.Add(-time.Minute), true)
		blobs.put(10, name)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := newTestSweeper(store, blobs, notif).Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, result.Deleted)
	require.Equal(t, 1, result.Errors)
	require.Contains(t, result.ErrorDetails[0], "pass interrupted")
	// Żaden wiersz nie został ruszony
	require.Len(t, store.rows, 5)
}

func TestConcurrentRunsDeleteEachFileOnce(t *testing.T) {
	store := newFakeStore()
	blobs := newFakeBlobs()
	notif := &fakeNotifier{}

	now := time.Now().UTC()
	const total = 20
	for i := int64(1); i <= total; i++ {
		name := fmt.Sprintf("plik_%d.txt", i)
		store.addRow(i, 10, name, now.Add(-time.Minute), true)
		blobs.put(10, name)
	}

	sweeper := newTestSweeper(store, blobs, notif)

	var wg sync.WaitGroup
	results := make([]*Result, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = sweeper.Run(context.Background())
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	// Dwa nakładające się przebiegi dzielą pracę, nigdy jej nie dublują
	require.Equal(t, total, results[0].Deleted+results[1].Deleted)
	require.Equal(t, 0, results[0].Errors)
	require.Equal(t, 0, results[1].Errors)
	require.Empty(t, store.rows)
}
