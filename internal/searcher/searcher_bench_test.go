package searcher

import (
	"context"
	"fmt"
	"testing"
)

// seedBenchmark adds n generated files to the fixture workspace
func seedBenchmark(b *testing.B, f *fixture, n int) {
	b.Helper()
	for i := 0; i < n; i++ {
		writeFile(b, f.root, fmt.Sprintf("pkg/mod%d/Handler%d.java", i%10, i), fmt.Sprintf(`package pkg.mod%d;

public class Handler%d implements RequestHandler {
    private final UserService users;

    public Response handle(Request req) {
        return users.lookup(req.id());
    }
}
`, i%10, i))
	}
	if _, err := f.indexer.IndexWorkspace(context.Background(), f.root, nil); err != nil {
		b.Fatalf("index: %v", err)
	}
}

func BenchmarkSearch_Uncached(b *testing.B) {
	f := setupTestSearcher(b)
	seedBenchmark(b, f, 200)
	ctx := context.Background()
	req := SearchRequest{Workspace: f.root, Query: "UserService handle", Limit: 20}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := f.searcher.Search(ctx, req); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSearch_Cached(b *testing.B) {
	f := setupTestSearcher(b)
	seedBenchmark(b, f, 200)
	ctx := context.Background()
	req := SearchRequest{Workspace: f.root, Query: "UserService handle", Limit: 20, UseCache: true}

	if _, err := f.searcher.Search(ctx, req); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := f.searcher.Search(ctx, req); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSearch_Explain(b *testing.B) {
	f := setupTestSearcher(b)
	seedBenchmark(b, f, 200)
	ctx := context.Background()
	req := SearchRequest{Workspace: f.root, Query: "RequestHandler", Limit: 50, Explain: true}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := f.searcher.Search(ctx, req); err != nil {
			b.Fatal(err)
		}
	}
}
