package driver

import "testing"

func TestAgedSet_MarkIfNewOnlyTrueOnce(t *testing.T) {
	s := newAgedSet(10)
	if !s.markIfNew("a", 1) {
		t.Fatal("expected first mark to report new")
	}
	if s.markIfNew("a", 2) {
		t.Fatal("expected second mark of the same sig to report not-new")
	}
	if !s.has("a") {
		t.Fatal("expected has to report true after marking")
	}
}

func TestAgedSet_EvictsOldestWhenFull(t *testing.T) {
	s := newAgedSet(2)
	s.markIfNew("a", 1)
	s.markIfNew("b", 2)
	s.markIfNew("c", 3)
	if s.has("a") {
		t.Fatal("expected oldest entry to be evicted once capacity is exceeded")
	}
	if !s.has("b") || !s.has("c") {
		t.Fatal("expected the two most recent entries to survive eviction")
	}
}

func TestAgedSet_PruneOlderThan(t *testing.T) {
	s := newAgedSet(10)
	s.markIfNew("old", 100)
	s.markIfNew("new", 200)
	s.pruneOlderThan(150)
	if s.has("old") {
		t.Fatal("expected entry older than cutoff to be pruned")
	}
	if !s.has("new") {
		t.Fatal("expected entry at or after cutoff to survive")
	}
}

func TestRetryMap_BackoffBlocksUntilCooldownElapses(t *testing.T) {
	r := newRetryMap()
	if !r.ready("k", 1000) {
		t.Fatal("expected an untouched key to be ready")
	}
	r.backoff("k", 1000, 5000)
	if r.ready("k", 1000) {
		t.Fatal("expected key to be blocked immediately after backoff")
	}
	if r.ready("k", 5999) {
		t.Fatal("expected key to still be blocked just before cooldown elapses")
	}
	if !r.ready("k", 6000) {
		t.Fatal("expected key to be ready once cooldown elapses")
	}
}

func TestRetryMap_ClearUnblocksImmediately(t *testing.T) {
	r := newRetryMap()
	r.backoff("k", 1000, 5000)
	r.clear("k")
	if !r.ready("k", 1000) {
		t.Fatal("expected clear to remove the backoff")
	}
}

func TestRetryMap_PruneDropsUnkeptKeys(t *testing.T) {
	r := newRetryMap()
	r.backoff("keep", 0, 1000)
	r.backoff("drop", 0, 1000)
	r.prune(func(key string) bool { return key == "keep" })
	if _, blocked := r.earliestAt["keep"]; !blocked {
		t.Fatal("expected kept key to survive prune")
	}
	if _, blocked := r.earliestAt["drop"]; blocked {
		t.Fatal("expected dropped key to be removed by prune")
	}
}

func TestLockMap_TryLockOnlySucceedsOnce(t *testing.T) {
	l := newLockMap()
	if !l.tryLock("trade-1", 1) {
		t.Fatal("expected first lock attempt to succeed")
	}
	if l.tryLock("trade-1", 2) {
		t.Fatal("expected second lock attempt on the same trade to fail")
	}
	if !l.locked("trade-1") {
		t.Fatal("expected locked to report true after a successful lock")
	}
}

func TestLockMap_Prune(t *testing.T) {
	l := newLockMap()
	l.tryLock("live", 1)
	l.tryLock("dead", 1)
	l.prune(func(tradeID string) bool { return tradeID == "live" })
	if !l.locked("live") {
		t.Fatal("expected live trade lock to survive prune")
	}
	if l.locked("dead") {
		t.Fatal("expected dead trade lock to be pruned")
	}
}

func TestStageDoneMap_MarkAndIsDone(t *testing.T) {
	m := newStageDoneMap()
	if m.isDone("trade-1:terms_post") {
		t.Fatal("expected a fresh key to not be done")
	}
	m.markDone("trade-1:terms_post", 1)
	if !m.isDone("trade-1:terms_post") {
		t.Fatal("expected key to be done after markDone")
	}
}

func TestStageDoneMap_Prune(t *testing.T) {
	m := newStageDoneMap()
	m.markDone("live:terms_post", 1)
	m.markDone("dead:terms_post", 1)
	m.prune(func(key string) bool { return stageKeyTradeID(key) == "live" })
	if !m.isDone("live:terms_post") {
		t.Fatal("expected live trade's stage-done entry to survive prune")
	}
	if m.isDone("dead:terms_post") {
		t.Fatal("expected dead trade's stage-done entry to be pruned")
	}
}

func TestInFlightSet_TryEnterExcludesConcurrentEntry(t *testing.T) {
	s := newInFlightSet()
	if !s.tryEnter("k") {
		t.Fatal("expected first entry to succeed")
	}
	if s.tryEnter("k") {
		t.Fatal("expected second concurrent entry on the same key to fail")
	}
	s.leave("k")
	if !s.tryEnter("k") {
		t.Fatal("expected entry to succeed again after leave")
	}
}

func TestPreimageCache_SetAndGet(t *testing.T) {
	c := newPreimageCache()
	if _, ok := c.get("trade-1"); ok {
		t.Fatal("expected miss on an unset trade")
	}
	c.set("trade-1", "deadbeef")
	v, ok := c.get("trade-1")
	if !ok || v != "deadbeef" {
		t.Fatal("expected the cached preimage to be returned")
	}
}

func TestStageKeyTradeID_SplitsOnFirstColon(t *testing.T) {
	if got := stageKeyTradeID("trade-1:terms_post"); got != "trade-1" {
		t.Fatalf("expected trade-1, got %s", got)
	}
	if got := stageKeyTradeID("no-colon"); got != "no-colon" {
		t.Fatalf("expected the whole string back when there is no colon, got %s", got)
	}
}

func TestCaches_PruneTerminalDropsLockAndStageState(t *testing.T) {
	c := newCaches()
	c.autoAcceptedTradeLock.tryLock("dead", 1)
	c.autoAcceptedTradeLock.tryLock("live", 1)
	c.stageDone.markDone("dead:terms_post", 1)
	c.stageDone.markDone("live:terms_post", 1)
	c.stageRetryAfter.backoff("dead:terms_post", 0, 1000)
	c.stageRetryAfter.backoff("live:terms_post", 0, 1000)

	c.pruneTerminal(map[string]bool{"live": true})

	if c.autoAcceptedTradeLock.locked("dead") {
		t.Fatal("expected terminal trade's lock to be pruned")
	}
	if !c.autoAcceptedTradeLock.locked("live") {
		t.Fatal("expected live trade's lock to survive")
	}
	if c.stageDone.isDone("dead:terms_post") {
		t.Fatal("expected terminal trade's stage-done entry to be pruned")
	}
	if !c.stageDone.isDone("live:terms_post") {
		t.Fatal("expected live trade's stage-done entry to survive")
	}
}
