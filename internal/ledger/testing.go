package ledger

// SeedBalance is a test helper that sets the balance of a wallet when using
// the in-memory store.
func SeedBalance(s Store, walletID string, amount int64) {
	if mem, ok := s.(*inMemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		w := mem.wallets[walletID]
		w.Balance = amount
		mem.wallets[walletID] = w
	}
}
