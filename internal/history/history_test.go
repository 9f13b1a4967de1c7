package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/fpang/video-insight/internal/analysis"
)

// fakeDynamo is an in-memory table keyed by PK+SK. Query returns pages of
// two items to exercise pagination.
type fakeDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
	order []string
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

func keyOf(m map[string]types.AttributeValue) string {
	pk := m["PK"].(*types.AttributeValueMemberS).Value
	sk := m["SK"].(*types.AttributeValueMemberS).Value
	return pk + "|" + sk
}

func conditionFailed() error {
	return &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := keyOf(in.Item)
	_, exists := f.items[k]
	if in.ConditionExpression != nil && !exists {
		return nil, conditionFailed()
	}
	if !exists {
		f.order = append(f.order, k)
	}
	f.items[k] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: f.items[keyOf(in.Key)]}, nil
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := keyOf(in.Key)
	if _, ok := f.items[k]; !ok {
		return nil, conditionFailed()
	}
	delete(f.items, k)
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var keys []string
	for _, k := range f.order {
		if _, ok := f.items[k]; ok {
			keys = append(keys, k)
		}
	}
	start := 0
	if in.ExclusiveStartKey != nil {
		after := keyOf(in.ExclusiveStartKey)
		for i, k := range keys {
			if k == after {
				start = i + 1
			}
		}
	}
	end := min(start+2, len(keys))

	out := &dynamodb.QueryOutput{}
	for _, k := range keys[start:end] {
		out.Items = append(out.Items, f.items[k])
	}
	if end < len(keys) {
		out.LastEvaluatedKey = f.items[keys[end-1]]
	}
	return out, nil
}

func stores(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := NewSQLiteStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
		"dynamo": NewDynamoStore(newFakeDynamo(), "video-insight-history"),
	}
}

func sampleResult(summary string) *analysis.Result {
	return &analysis.Result{
		Mode:           analysis.ModeDeep,
		Summary:        summary,
		KeyTakeaways:   []analysis.KeyTakeaway{{Point: "p", Detail: "d"}},
		MindMapMermaid: "graph TD\n  A --> B",
		Timestamps:     []analysis.Timestamp{{Time: "01:05", Seconds: 65, Description: "x"}},
		ActionItems:    []string{"a"},
		FileURI:        "https://example/files/1",
		FileMIMEType:   "video/mp4",
	}
}

func TestStore_SaveGetRoundTrip(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			e := NewEntry("talk.mp4", sampleResult("概要"))
			if err := s.Save(ctx, e); err != nil {
				t.Fatalf("Save() error = %v", err)
			}

			got, err := s.Get(ctx, e.ID)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if got.ID != e.ID || got.FileName != "talk.mp4" || got.Mode != analysis.ModeDeep {
				t.Errorf("Get() = %+v", got)
			}
			if !got.CreatedAt.Equal(e.CreatedAt) {
				t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, e.CreatedAt)
			}
			if got.Result.Summary != "概要" || got.Result.Timestamps[0].Time != "01:05" {
				t.Errorf("Result = %+v", got.Result)
			}
			if got.Chat == nil {
				t.Error("Chat should be non-nil")
			}

			if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStore_ListNewestFirst(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
			var ids []string
			for i := 0; i < 5; i++ {
				e := NewEntry("v.mp4", sampleResult("s"))
				e.CreatedAt = base.Add(time.Duration(i) * time.Minute)
				if err := s.Save(ctx, e); err != nil {
					t.Fatal(err)
				}
				ids = append(ids, e.ID)
			}

			all, err := s.List(ctx, 0)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(all) != 5 {
				t.Fatalf("len(List()) = %d, want 5", len(all))
			}
			for i, e := range all {
				if want := ids[4-i]; e.ID != want {
					t.Errorf("List()[%d] = %s, want %s", i, e.ID, want)
				}
			}

			limited, err := s.List(ctx, 2)
			if err != nil {
				t.Fatal(err)
			}
			if len(limited) != 2 || limited[0].ID != ids[4] {
				t.Errorf("List(2) returned %d entries", len(limited))
			}
		})
	}
}

func TestStore_AppendChat(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			e := NewEntry("talk.mp4", sampleResult("s"))
			if err := s.Save(ctx, e); err != nil {
				t.Fatal(err)
			}

			q := analysis.Turn{Role: analysis.RoleUser, Text: "讲了什么？"}
			a := analysis.Turn{Role: analysis.RoleAssistant, Text: "并发。"}
			if err := s.AppendChat(ctx, e.ID, q, a); err != nil {
				t.Fatalf("AppendChat() error = %v", err)
			}
			if err := s.AppendChat(ctx, e.ID, q); err != nil {
				t.Fatal(err)
			}

			got, err := s.Get(ctx, e.ID)
			if err != nil {
				t.Fatal(err)
			}
			if len(got.Chat) != 3 || got.Chat[0] != q || got.Chat[1] != a || got.Chat[2] != q {
				t.Errorf("Chat = %+v", got.Chat)
			}

			if err := s.AppendChat(ctx, "missing", q); !errors.Is(err, ErrNotFound) {
				t.Errorf("AppendChat(missing) error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStore_Delete(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			e := NewEntry("talk.mp4", sampleResult("s"))
			if err := s.Save(ctx, e); err != nil {
				t.Fatal(err)
			}
			if err := s.Delete(ctx, e.ID); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if _, err := s.Get(ctx, e.ID); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get after Delete error = %v", err)
			}
			if err := s.Delete(ctx, e.ID); !errors.Is(err, ErrNotFound) {
				t.Errorf("second Delete() error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStore_SaveReplaces(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			e := NewEntry("talk.mp4", sampleResult("old"))
			if err := s.Save(ctx, e); err != nil {
				t.Fatal(err)
			}
			e.Result.Summary = "new"
			if err := s.Save(ctx, e); err != nil {
				t.Fatal(err)
			}
			got, _ := s.Get(ctx, e.ID)
			if got.Result.Summary != "new" {
				t.Errorf("Summary = %q, want new", got.Result.Summary)
			}
			all, _ := s.List(ctx, 0)
			if len(all) != 1 {
				t.Errorf("len(List()) = %d, want 1", len(all))
			}
		})
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	e := NewEntry("talk.mp4", sampleResult("s"))
	if err := s.Save(ctx, e); err != nil {
		t.Fatal(err)
	}
	e.Result.Summary = "mutated after save"

	got, _ := s.Get(ctx, e.ID)
	if got.Result.Summary != "s" {
		t.Errorf("store shares state with caller: %q", got.Result.Summary)
	}
}

func TestPayloadCodec(t *testing.T) {
	e := NewEntry("talk.mp4", sampleResult("压缩测试"))
	payload, err := encodePayload(e)
	if err != nil {
		t.Fatal(err)
	}
	got, err := decodePayload(payload)
	if err != nil {
		t.Fatal(err)
	}
	if got.Result.Summary != "压缩测试" {
		t.Errorf("Summary = %q", got.Result.Summary)
	}
	if _, err := decodePayload([]byte("not zstd")); err == nil {
		t.Error("decodePayload(garbage) expected error")
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	if s, err := Open(ctx, Options{Backend: BackendMemory}); err != nil {
		t.Errorf("Open(memory) error = %v", err)
	} else if _, ok := s.(*MemoryStore); !ok {
		t.Errorf("Open(memory) = %T", s)
	}

	s, err := Open(ctx, Options{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Open(default) error = %v", err)
	}
	defer s.Close()
	if _, ok := s.(*SQLiteStore); !ok {
		t.Errorf("Open(default) = %T, want sqlite", s)
	}

	if _, err := Open(ctx, Options{Backend: BackendDynamo}); err == nil {
		t.Error("Open(dynamodb) without table expected error")
	}
	if _, err := Open(ctx, Options{Backend: "redis"}); err == nil {
		t.Error("Open(unknown) expected error")
	}
}
