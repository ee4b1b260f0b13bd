package inventory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubeboot/kubeboot/pkg/apis/kubeboot/v1alpha1"
	"github.com/kubeboot/kubeboot/pkg/common"
)

func threeMasterSpec() *v1alpha1.ClusterSpec {
	return &v1alpha1.ClusterSpec{
		Hosts: []v1alpha1.HostSpec{
			{Name: "m1", Address: "10.0.0.1"},
			{Name: "m2", Address: "10.0.0.2"},
			{Name: "m3", Address: "10.0.0.3"},
			{Name: "w1", Address: "10.0.0.4", Port: 2222, User: "ops"},
		},
		RoleGroups: v1alpha1.RoleGroupsSpec{
			ControlPlane: v1alpha1.RoleGroupSpec{Hosts: []string{"m1", "m2", "m3"}},
			Worker:       v1alpha1.RoleGroupSpec{Hosts: []string{"w1"}},
		},
	}
}

func TestBuildAssignsRolesByDeclarationOrder(t *testing.T) {
	inv, err := Build(threeMasterSpec())
	require.NoError(t, err)

	require.Len(t, inv.ControlPlanes, 3)
	assert.Equal(t, "m1", inv.Primary().Name)
	assert.Equal(t, common.RoleControlPlanePrimary, inv.Primary().Role)
	assert.Equal(t, common.RoleControlPlaneSecondary, inv.ControlPlanes[1].Role)
	assert.Equal(t, common.RoleControlPlaneSecondary, inv.ControlPlanes[2].Role)

	secondaries := inv.SecondaryControlPlanes()
	require.Len(t, secondaries, 2)
	assert.Equal(t, "m2", secondaries[0].Name)
	assert.Equal(t, "m3", secondaries[1].Name)
}

func TestBuildReorderingChangesPrimary(t *testing.T) {
	spec := threeMasterSpec()
	spec.RoleGroups.ControlPlane.Hosts = []string{"m3", "m1", "m2"}

	inv, err := Build(spec)
	require.NoError(t, err)
	assert.Equal(t, "m3", inv.Primary().Name)
}

func TestBuildConnectionDefaults(t *testing.T) {
	inv, err := Build(threeMasterSpec())
	require.NoError(t, err)

	assert.Equal(t, common.DefaultSSHPort, inv.Primary().Port)
	assert.Equal(t, common.DefaultSSHUser, inv.Primary().User)

	w := inv.Workers[0]
	assert.Equal(t, 2222, w.Port)
	assert.Equal(t, "ops", w.User)
}

func TestBuildEmptyWorkersIsValid(t *testing.T) {
	spec := threeMasterSpec()
	spec.RoleGroups.Worker.Hosts = nil

	inv, err := Build(spec)
	require.NoError(t, err)
	assert.Empty(t, inv.Workers)
	assert.Len(t, inv.All(), 3)
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*v1alpha1.ClusterSpec)
	}{
		{"no control planes", func(s *v1alpha1.ClusterSpec) {
			s.RoleGroups.ControlPlane.Hosts = nil
		}},
		{"missing address", func(s *v1alpha1.ClusterSpec) {
			s.Hosts[0].Address = ""
		}},
		{"undeclared host in role group", func(s *v1alpha1.ClusterSpec) {
			s.RoleGroups.Worker.Hosts = []string{"ghost"}
		}},
		{"duplicate host declaration", func(s *v1alpha1.ClusterSpec) {
			s.Hosts = append(s.Hosts, v1alpha1.HostSpec{Name: "m1", Address: "10.0.0.9"})
		}},
		{"host in two role groups", func(s *v1alpha1.ClusterSpec) {
			s.RoleGroups.Worker.Hosts = []string{"m2"}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := threeMasterSpec()
			tt.mutate(spec)
			_, err := Build(spec)
			require.Error(t, err)
			_, ok := err.(*InventoryError)
			assert.True(t, ok, "expected *InventoryError, got %T", err)
		})
	}
}

func TestLimit(t *testing.T) {
	inv, err := Build(threeMasterSpec())
	require.NoError(t, err)

	matched := Limit(inv.All(), "m*")
	require.Len(t, matched, 3)
	for _, n := range matched {
		assert.True(t, n.IsControlPlane())
	}

	assert.Len(t, Limit(inv.All(), ""), 4)
	assert.Empty(t, Limit(inv.All(), "db-*"))
}

func TestValidateLimitPattern(t *testing.T) {
	assert.NoError(t, ValidateLimitPattern(""))
	assert.NoError(t, ValidateLimitPattern("master-*"))
	assert.Error(t, ValidateLimitPattern("[unclosed"))
}
