package docserver

import (
	"context"
	"testing"
)

func TestMemoryStorageCreate(t *testing.T) {
	s := NewMemoryStorage()

	created, err := s.Create(context.Background(), "Device", map[string]interface{}{"name": "Boiler"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if id, _ := created["_id"].(string); id == "" {
		t.Error("create should assign an _id")
	}

	created, err = s.Create(context.Background(), "Device", map[string]interface{}{"_id": "dev1"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created["_id"] != "dev1" {
		t.Errorf("a provided _id should be kept, got %v", created["_id"])
	}
}

func TestMemoryStorageRead(t *testing.T) {
	s := NewMemoryStorage()
	s.Create(context.Background(), "Device", map[string]interface{}{"_id": "dev1", "status": "online"})
	s.Create(context.Background(), "Device", map[string]interface{}{"_id": "dev2", "status": "offline"})
	s.Create(context.Background(), "HistoryData", map[string]interface{}{"deviceId": "dev1"})

	docs, err := s.Read(context.Background(), "Device", map[string]interface{}{"status": "online"})
	if err != nil || len(docs) != 1 || docs[0]["_id"] != "dev1" {
		t.Errorf("unexpected filtered read: %v (%v)", docs, err)
	}

	docs, _ = s.Read(context.Background(), "Device", map[string]interface{}{})
	if len(docs) != 2 {
		t.Errorf("an empty query should match the whole collection, got %d", len(docs))
	}

	docs, err = s.Read(context.Background(), "Ghost", map[string]interface{}{})
	if err != nil || docs == nil || len(docs) != 0 {
		t.Errorf("an unknown collection reads as an empty list, got %v (%v)", docs, err)
	}
}

func TestMemoryStorageUpdate(t *testing.T) {
	s := NewMemoryStorage()
	s.Create(context.Background(), "Device", map[string]interface{}{"_id": "dev1", "name": "Boiler", "revision": float64(1)})

	n, err := s.Update(context.Background(), "Device",
		map[string]interface{}{"_id": "dev1"},
		map[string]interface{}{"_id": "hijack", "revision": float64(2)})
	if err != nil || n != 1 {
		t.Fatalf("expected 1 update, got %d (%v)", n, err)
	}

	docs, _ := s.Read(context.Background(), "Device", map[string]interface{}{"_id": "dev1"})
	if len(docs) != 1 {
		t.Fatal("the _id must never be overwritten")
	}
	if docs[0]["revision"] != float64(2) || docs[0]["name"] != "Boiler" {
		t.Errorf("update should merge fields, got %v", docs[0])
	}

	n, _ = s.Update(context.Background(), "Device",
		map[string]interface{}{"_id": "ghost"}, map[string]interface{}{"name": "x"})
	if n != 0 {
		t.Errorf("no match should update nothing, got %d", n)
	}
}

func TestMemoryStorageDelete(t *testing.T) {
	s := NewMemoryStorage()
	s.Create(context.Background(), "Device", map[string]interface{}{"_id": "dev1"})
	s.Create(context.Background(), "Device", map[string]interface{}{"_id": "dev2"})

	n, err := s.Delete(context.Background(), "Device", map[string]interface{}{"_id": "dev1"})
	if err != nil || n != 1 {
		t.Fatalf("expected 1 delete, got %d (%v)", n, err)
	}

	docs, _ := s.Read(context.Background(), "Device", map[string]interface{}{})
	if len(docs) != 1 || docs[0]["_id"] != "dev2" {
		t.Errorf("unexpected remaining docs: %v", docs)
	}
}

func TestMemoryStorageReadReturnsCopies(t *testing.T) {
	s := NewMemoryStorage()
	s.Create(context.Background(), "Device", map[string]interface{}{"_id": "dev1", "name": "Boiler"})

	docs, _ := s.Read(context.Background(), "Device", map[string]interface{}{})
	docs[0]["name"] = "mutated"

	docs, _ = s.Read(context.Background(), "Device", map[string]interface{}{})
	if docs[0]["name"] != "Boiler" {
		t.Error("reads must return copies, not the stored document")
	}
}
