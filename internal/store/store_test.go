package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/SubinY/email-sender/internal/models"
	"github.com/SubinY/email-sender/internal/secrets"
)

func setupStore(t *testing.T) *Store {
	t.Helper()

	box, err := secrets.NewBox("test-master-key")
	if err != nil {
		t.Fatalf("failed to create box: %v", err)
	}

	s, err := Open(filepath.Join(t.TempDir(), "test.db"), box)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSenderCreateAndGet(t *testing.T) {
	s := setupStore(t)

	sender := &models.Sender{
		CompanyName:  "Acme Corp",
		EmailAccount: "news@acme.example",
		SMTPEndpoint: "smtp.acme.example",
		Port:         587,
		TLS:          true,
		SenderName:   "Acme News",
		Enabled:      true,
	}
	if err := s.Senders.Create(sender, "hunter2"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if sender.ID == "" {
		t.Fatal("Create should assign an id")
	}

	got, err := s.Senders.GetByID(sender.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got == nil {
		t.Fatal("sender not found")
	}
	if got.EmailAccount != "news@acme.example" {
		t.Errorf("EmailAccount = %s", got.EmailAccount)
	}

	secret, err := s.Senders.Secret(got)
	if err != nil {
		t.Fatalf("Secret failed: %v", err)
	}
	if secret != "hunter2" {
		t.Errorf("Secret = %q, want hunter2", secret)
	}
}

func TestSenderSecretNotPlaintext(t *testing.T) {
	s := setupStore(t)

	sender := &models.Sender{EmailAccount: "a@b.example", Enabled: true}
	if err := s.Senders.Create(sender, "topsecret"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, _ := s.Senders.GetByID(sender.ID)
	if string(got.SecretSealed) == "topsecret" {
		t.Error("secret stored in plaintext")
	}
}

func TestSenderUpdateKeepsSecret(t *testing.T) {
	s := setupStore(t)

	sender := &models.Sender{EmailAccount: "a@b.example"}
	if err := s.Senders.Create(sender, "original"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	sender.CompanyName = "Renamed"
	if err := s.Senders.Update(sender, ""); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, _ := s.Senders.GetByID(sender.ID)
	if got.CompanyName != "Renamed" {
		t.Errorf("CompanyName = %s", got.CompanyName)
	}
	secret, _ := s.Senders.Secret(got)
	if secret != "original" {
		t.Errorf("empty secret on update must keep stored secret, got %q", secret)
	}
}

func TestSenderListEnabledOnly(t *testing.T) {
	s := setupStore(t)

	for i, enabled := range []bool{true, false, true} {
		sender := &models.Sender{
			EmailAccount: "a@b.example",
			Enabled:      enabled,
		}
		if err := s.Senders.Create(sender, ""); err != nil {
			t.Fatalf("Create %d failed: %v", i, err)
		}
	}

	all, err := s.Senders.List(models.SenderListFilter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 senders, got %d", len(all))
	}

	enabled, err := s.Senders.List(models.SenderListFilter{EnabledOnly: true})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(enabled) != 2 {
		t.Errorf("expected 2 enabled senders, got %d", len(enabled))
	}
}

func TestSenderGetManyMissing(t *testing.T) {
	s := setupStore(t)

	sender := &models.Sender{EmailAccount: "a@b.example"}
	if err := s.Senders.Create(sender, ""); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if _, err := s.Senders.GetMany([]string{sender.ID, "no-such-id"}); err == nil {
		t.Error("expected error for missing sender")
	}
}

func TestRecipientBlacklistExcluded(t *testing.T) {
	s := setupStore(t)

	for _, email := range []string{"a@x.example", "b@x.example", "c@x.example"} {
		if err := s.Recipients.Create(&models.Recipient{Email: email}); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	all, _ := s.Recipients.List()
	if err := s.Recipients.SetBlacklisted(all[1].ID, true); err != nil {
		t.Fatalf("SetBlacklisted failed: %v", err)
	}

	deliverable, err := s.Recipients.ListDeliverable()
	if err != nil {
		t.Fatalf("ListDeliverable failed: %v", err)
	}
	if len(deliverable) != 2 {
		t.Errorf("expected 2 deliverable recipients, got %d", len(deliverable))
	}
	for _, rec := range deliverable {
		if rec.Blacklisted {
			t.Error("blacklisted recipient returned as deliverable")
		}
	}
}

func TestRecipientCreateInvalidEmail(t *testing.T) {
	s := setupStore(t)

	if err := s.Recipients.Create(&models.Recipient{Email: "not-an-email"}); err == nil {
		t.Error("expected error for invalid email")
	}
}

func TestRecipientImport(t *testing.T) {
	s := setupStore(t)

	result, err := s.Recipients.Import([]models.Recipient{
		{Email: "ok1@x.example"},
		{Email: "broken"},
		{Email: "ok2@x.example"},
	})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	if result.Total != 3 || result.Imported != 2 || result.Skipped != 1 {
		t.Errorf("unexpected result: %+v", result)
	}

	recs, _ := s.Recipients.List()
	if len(recs) != 2 {
		t.Errorf("expected 2 stored recipients, got %d", len(recs))
	}
}

func TestTaskLifecycleTimestamps(t *testing.T) {
	s := setupStore(t)

	task := &models.Task{Name: "spring campaign", EmailsPerHour: 2, EmailsPerRecipientPerDay: 2}
	if err := s.Tasks.Create(task); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if task.Status != models.TaskInitialized {
		t.Errorf("new task status = %s", task.Status)
	}

	if err := s.Tasks.UpdateStatus(task.ID, models.TaskRunning); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	got, _ := s.Tasks.GetByID(task.ID)
	if got.StartTime == nil {
		t.Error("running task should have a start time")
	}
	if got.EndTime != nil {
		t.Error("running task should not have an end time")
	}

	if err := s.Tasks.UpdateStatus(task.ID, models.TaskCompleted); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	got, _ = s.Tasks.GetByID(task.ID)
	if got.EndTime == nil {
		t.Error("completed task should have an end time")
	}
}

func TestTaskSoftDeleteHidesRecord(t *testing.T) {
	s := setupStore(t)

	task := &models.Task{Name: "t"}
	if err := s.Tasks.Create(task); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := s.Tasks.SoftDelete(task.ID); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}

	got, err := s.Tasks.GetByID(task.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got != nil {
		t.Error("soft-deleted task should not be returned")
	}

	tasks, _ := s.Tasks.List()
	if len(tasks) != 0 {
		t.Errorf("soft-deleted task should not be listed, got %d", len(tasks))
	}
}

func TestTaskPurgeDeleted(t *testing.T) {
	s := setupStore(t)

	task := &models.Task{Name: "old"}
	if err := s.Tasks.Create(task); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := s.Tasks.SoftDelete(task.ID); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}

	// Not old enough yet
	purged, err := s.Tasks.PurgeDeleted(time.Hour)
	if err != nil {
		t.Fatalf("PurgeDeleted failed: %v", err)
	}
	if purged != 0 {
		t.Errorf("expected 0 purged, got %d", purged)
	}

	purged, err = s.Tasks.PurgeDeleted(0)
	if err != nil {
		t.Fatalf("PurgeDeleted failed: %v", err)
	}
	if purged != 1 {
		t.Errorf("expected 1 purged, got %d", purged)
	}
}

func TestTaskMarkInterrupted(t *testing.T) {
	s := setupStore(t)

	running := &models.Task{Name: "running"}
	idle := &models.Task{Name: "idle"}
	if err := s.Tasks.Create(running); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := s.Tasks.Create(idle); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := s.Tasks.UpdateStatus(running.ID, models.TaskRunning); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	interrupted, err := s.Tasks.MarkInterrupted()
	if err != nil {
		t.Fatalf("MarkInterrupted failed: %v", err)
	}
	if len(interrupted) != 1 || interrupted[0] != running.ID {
		t.Errorf("interrupted = %v", interrupted)
	}

	got, _ := s.Tasks.GetByID(running.ID)
	if got.Status != models.TaskPaused {
		t.Errorf("interrupted task status = %s, want paused", got.Status)
	}
}
