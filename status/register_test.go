package status_test

import (
	"sync"
	"testing"

	"github.com/pop-os/upgrade-daemon/status"
)

func TestRegister_InitialState(t *testing.T) {
	r := status.NewRegister()
	if got := r.LoadPhase(); got != status.Inactive {
		t.Errorf("LoadPhase() = %v, want Inactive", got)
	}
	fs := r.LoadFetch()
	if fs.Completed != 0 || fs.Total != 0 {
		t.Errorf("LoadFetch() = %+v, want {0 0}", fs)
	}
}

func TestRegister_SwapPhase(t *testing.T) {
	r := status.NewRegister()
	old := r.SwapPhase(status.FetchingPackages)
	if old != status.Inactive {
		t.Errorf("SwapPhase returned %v, want Inactive", old)
	}
	if got := r.LoadPhase(); got != status.FetchingPackages {
		t.Errorf("LoadPhase() = %v, want FetchingPackages", got)
	}
}

func TestRegister_CompareAndSwapPhase(t *testing.T) {
	r := status.NewRegister()
	if !r.CompareAndSwapPhase(status.Inactive, status.ReleaseUpgrade) {
		t.Fatal("CompareAndSwapPhase(Inactive, ReleaseUpgrade) failed on fresh register")
	}
	if r.CompareAndSwapPhase(status.Inactive, status.FetchingPackages) {
		t.Fatal("CompareAndSwapPhase(Inactive, ...) succeeded while phase was already claimed")
	}
}

func TestRegister_FetchMonotonicity(t *testing.T) {
	r := status.NewRegister()
	r.StoreFetch(0, 10)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.IncrementCompleted()
		}()
	}
	wg.Wait()

	fs := r.LoadFetch()
	if fs.Completed != 10 {
		t.Errorf("Completed = %d, want 10", fs.Completed)
	}
	if fs.Completed > fs.Total {
		t.Errorf("Completed %d exceeds Total %d", fs.Completed, fs.Total)
	}
}

func TestRegister_Reset(t *testing.T) {
	r := status.NewRegister()
	r.SwapPhase(status.RecoveryUpgrade)
	r.StoreSub(status.SubPhase(3))
	r.StoreFetch(5, 10)

	r.Reset()

	if got := r.LoadPhase(); got != status.Inactive {
		t.Errorf("LoadPhase() after Reset = %v, want Inactive", got)
	}
	if got := r.LoadSub(); got != 0 {
		t.Errorf("LoadSub() after Reset = %d, want 0", got)
	}
	fs := r.LoadFetch()
	if fs.Completed != 0 || fs.Total != 0 {
		t.Errorf("LoadFetch() after Reset = %+v, want {0 0}", fs)
	}
}
