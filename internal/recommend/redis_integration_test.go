package recommend

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/kgchat-backend/internal/kg"
)

func TestRedisStoreLifecycle(t *testing.T) {
	addr := strings.TrimSpace(os.Getenv("KGCHAT_TEST_REDIS_ADDR"))
	if addr == "" {
		t.Skip("KGCHAT_TEST_REDIS_ADDR not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Fatalf("ping: %v", err)
	}

	st := NewRedisStore(rdb, "kgchat:test:"+uuid.NewString(), time.Minute)
	conv := "conv"

	n, err := st.Add(ctx, conv, kg.Entity{ID: "C1", Name: "Fish Oil"}, []kg.Category{kg.CategoryDisease, kg.CategoryGene})
	if err != nil || n != 2 {
		t.Fatalf("Add n=%d err=%v", n, err)
	}
	n, err = st.Add(ctx, conv, kg.Entity{ID: "C1", Name: "Fish Oil"}, []kg.Category{kg.CategoryGene, kg.CategoryDrugs})
	if err != nil || n != 1 {
		t.Fatalf("Add n=%d err=%v", n, err)
	}

	list, err := st.List(ctx, conv)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if fmt.Sprint(ids(list)) != "[1 2 3]" || list[2].Category != kg.CategoryDrugs || list[0].AnchorName != "Fish Oil" {
		t.Fatalf("list=%+v", list)
	}

	cand, ok, err := st.Consume(ctx, conv, 2)
	if err != nil || !ok || cand.Category != kg.CategoryGene {
		t.Fatalf("cand=%+v ok=%v err=%v", cand, ok, err)
	}
	if _, ok, err := st.Consume(ctx, conv, 2); err != nil || ok {
		t.Fatalf("second consume ok=%v err=%v", ok, err)
	}

	if err := st.Reset(ctx, conv); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	n, err = st.Add(ctx, conv, kg.Entity{ID: "C2", Name: "Inflammation"}, []kg.Category{kg.CategoryGene})
	if err != nil || n != 1 {
		t.Fatalf("Add n=%d err=%v", n, err)
	}
	list, _ = st.List(ctx, conv)
	if fmt.Sprint(ids(list)) != "[4]" {
		t.Fatalf("ids after reset=%v", ids(list))
	}
}
