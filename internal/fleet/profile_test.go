package fleet

import (
	"errors"
	"testing"
)

func profile(name string, parents []string, config map[string]map[string]string) Profile {
	return Profile{Name: name, Version: "1.0", Parents: parents, Config: config}
}

func TestConfigurationEqualIgnoresNameAndVersion(t *testing.T) {
	a := profile("camel", []string{"default"}, map[string]map[string]string{
		"org.fusesource.fabric.agent": {"feature.camel": "camel"},
	})
	b := profile("camel-renamed", []string{"default"}, map[string]map[string]string{
		"org.fusesource.fabric.agent": {"feature.camel": "camel"},
	})
	b.Version = "1.1"

	if !ConfigurationEqual(a, b) || !ConfigurationEqual(b, a) {
		t.Fatalf("expected configuration-equal profiles in both directions")
	}
	if a.Fingerprint().String() != b.Fingerprint().String() {
		t.Fatalf("fingerprints differ: %s vs %s", a.Fingerprint(), b.Fingerprint())
	}
	if len(a.Fingerprint().String()) != 64 {
		t.Fatalf("expected 64 hex chars, got %q", a.Fingerprint())
	}
}

func TestFingerprintNormalizesParentsAndEmptyContainers(t *testing.T) {
	a := profile("a", []string{"karaf", "default", "default"}, nil)
	b := profile("b", []string{" default", "karaf"}, map[string]map[string]string{})
	if !ConfigurationEqual(a, b) {
		t.Fatalf("parent order, duplicates, and nil config must not affect equality")
	}
}

func TestFingerprintDetectsConfigChanges(t *testing.T) {
	base := profile("mq", []string{"default"}, map[string]map[string]string{
		"org.fusesource.mq": {"broker": "a"},
	})
	changedValue := profile("mq", []string{"default"}, map[string]map[string]string{
		"org.fusesource.mq": {"broker": "b"},
	})
	changedParent := profile("mq", []string{"karaf"}, map[string]map[string]string{
		"org.fusesource.mq": {"broker": "a"},
	})
	if ConfigurationEqual(base, changedValue) {
		t.Fatalf("value change must alter fingerprint")
	}
	if ConfigurationEqual(base, changedParent) {
		t.Fatalf("parent change must alter fingerprint")
	}
}

func TestSameConfigurationSortsBeforeComparing(t *testing.T) {
	camel := profile("camel", nil, map[string]map[string]string{"agent": {"feature": "camel"}})
	mq := profile("mq", nil, map[string]map[string]string{"agent": {"feature": "mq"}})
	camel2 := camel
	camel2.Name = "zz-camel"

	if !SameConfiguration([]Profile{camel, mq}, []Profile{mq, camel2}) {
		t.Fatalf("expected order- and name-independent set equality")
	}
	if SameConfiguration([]Profile{camel}, []Profile{camel, mq}) {
		t.Fatalf("different lengths must not be equal")
	}
	if !SameConfiguration(nil, []Profile{}) {
		t.Fatalf("empty sets must be equal")
	}
}

func TestCloneProfilesIsDeep(t *testing.T) {
	in := []Profile{profile("camel", []string{"default"}, map[string]map[string]string{"agent": {"k": "v"}})}
	out := CloneProfiles(in)
	out[0].Config["agent"]["k"] = "changed"
	out[0].Parents[0] = "changed"
	if in[0].Config["agent"]["k"] != "v" || in[0].Parents[0] != "default" {
		t.Fatalf("clone shares state with source")
	}
}

func TestParseProvisionStatus(t *testing.T) {
	cases := map[string]ProvisionStatus{
		"success":   StatusSuccess,
		" Pending":  StatusPending,
		"error":     StatusFailure,
		"failure":   StatusFailure,
		"":          StatusUnknown,
		"analyzing": StatusUnknown,
	}
	for raw, want := range cases {
		if got := ParseProvisionStatus(raw); got != want {
			t.Fatalf("status %q: got %q want %q", raw, got, want)
		}
	}
}

func TestSnapshotReadyRequiresFullTriple(t *testing.T) {
	ready := Snapshot{Alive: true, Status: StatusSuccess, Endpoint: "ssh://host:8101"}
	if !ready.Ready() {
		t.Fatalf("expected ready")
	}
	for _, s := range []Snapshot{
		{Alive: false, Status: StatusSuccess, Endpoint: "ssh://host:8101"},
		{Alive: true, Status: StatusPending, Endpoint: "ssh://host:8101"},
		{Alive: true, Status: StatusSuccess, Endpoint: "  "},
	} {
		if s.Ready() {
			t.Fatalf("snapshot must not be ready: %+v", s)
		}
	}
	if !(Snapshot{Error: "boom"}).Failed() {
		t.Fatalf("expected failed snapshot")
	}
}

func TestChildRequestValidate(t *testing.T) {
	req := ChildRequest(" child1 ", "root").WithLaunchOption(LaunchOptionJVMOpts, "-Xms1024m -Xmx1024m")
	if err := req.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if req.Name != "child1" || req.RequestID == "" {
		t.Fatalf("unexpected request: %+v", req)
	}
	if req.LaunchOptions[LaunchOptionJVMOpts] != "-Xms1024m -Xmx1024m" {
		t.Fatalf("missing jvm opts: %v", req.LaunchOptions)
	}
	if ChildRequest("a", "root").RequestID == ChildRequest("a", "root").RequestID {
		t.Fatalf("request ids must be unique")
	}

	if err := ChildRequest("", "root").Validate(); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected missing-name error, got %v", err)
	}
	if err := ChildRequest("child1", "").Validate(); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected missing-parent error, got %v", err)
	}
	bad := ChildRequest("child1", "root")
	bad.Kind = "ssh"
	if err := bad.Validate(); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected unsupported-kind error, got %v", err)
	}
}

func TestFirstResultConsultsOnlyFirstEntry(t *testing.T) {
	if _, ok := FirstResult(nil); ok {
		t.Fatalf("expected no result for empty batch")
	}
	cause := errors.New("port in use")
	first, ok := FirstResult([]CreateContainerResult{{Failure: cause}, {}})
	if !ok || !first.Failed() || first.Failure != cause {
		t.Fatalf("unexpected first result: %+v", first)
	}
}

func TestErrorTaxonomyUnwraps(t *testing.T) {
	cause := errors.New("disk full")
	err := error(&CreationFailedError{Name: "child1", Cause: cause})
	if !errors.Is(err, ErrCreationFailed) || !errors.Is(err, cause) {
		t.Fatalf("creation error must match sentinel and cause")
	}
	if !errors.Is(&CoordinationWriteFailedError{Path: "/p"}, ErrCoordinationWriteFailed) {
		t.Fatalf("coordination error must match sentinel without cause")
	}
	if !errors.Is(&ContainerNotFoundError{Name: "x"}, ErrContainerNotFound) {
		t.Fatalf("not-found error must match sentinel")
	}
	timeout := &ProvisionTimeoutError{ContainerID: "child1"}
	if errors.Is(timeout, ErrProvisionFailed) {
		t.Fatalf("timeout must not match provision failure")
	}
}
