// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Guildhall Contributors

//go:build integration

package sim_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/guildhall/guildhall/internal/persistence"
	"github.com/guildhall/guildhall/internal/state"
)

var _ = Describe("Snapshot persistence", func() {
	var (
		w     *testWorld
		store *persistence.Store
		ctx   context.Context
	)

	BeforeEach(func() {
		w = buildTestWorld()
		w.dispatcher.Start()
		DeferCleanup(w.dispatcher.Stop)

		var err error
		store, err = persistence.Open(persistence.StoreConfig{
			Dir:  GinkgoT().TempDir(),
			Keep: 3,
		})
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() {
			Expect(store.Close()).To(Succeed())
		})

		ctx = context.Background()
	})

	It("round-trips live state through the store", func() {
		initialVersion := w.manager.Version()
		Eventually(func() uint64 {
			w.step()
			return w.manager.Version()
		}).WithTimeout(5 * time.Second).WithPolling(time.Millisecond).
			Should(BeNumerically(">", initialVersion))

		snap := w.manager.Snapshot()
		path, err := store.Save(ctx, snap, w.loop.Tick())
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(BeAnExistingFile())

		// State keeps evolving after the snapshot.
		Expect(w.manager.UpdateState(func(s *state.GameState) error {
			s.Guild.Treasury += 1000
			return nil
		})).To(Succeed())

		loaded, err := store.Latest(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.ID).To(Equal(snap.ID))
		Expect(loaded.State.VerifyChecksum()).To(BeTrue())

		Expect(w.manager.RestoreSnapshot(loaded)).To(Succeed())
		Expect(w.manager.View().Guild.Treasury).To(Equal(snap.State.Guild.Treasury))
		Expect(w.manager.Version()).To(Equal(snap.Version))
	})

	It("rejects a snapshot whose state was altered after capture", func() {
		snap := w.manager.Snapshot()
		snap.State.Guild.Treasury += 9999

		before := w.manager.View()
		err := w.manager.RestoreSnapshot(snap)
		Expect(err).To(MatchError(state.ErrCorruptedSnapshot))
		Expect(w.manager.View().Guild.Treasury).To(Equal(before.Guild.Treasury))
	})

	It("prunes the catalog down to the configured retention", func() {
		for i := 0; i < 5; i++ {
			Expect(w.manager.UpdateState(func(s *state.GameState) error {
				s.Guild.Treasury++
				return nil
			})).To(Succeed())
			snap := w.manager.Snapshot()
			_, err := store.Save(ctx, snap, uint64(i+1))
			Expect(err).NotTo(HaveOccurred())
		}

		entries, err := store.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(3))
		Expect(entries[0].Tick).To(Equal(uint64(5)))
	})
})
