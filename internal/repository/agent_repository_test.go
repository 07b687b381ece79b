package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/payhub-next/internal/models"
)

func setupAgentRepoTest(t *testing.T) (*gorm.DB, *GormAgentRepository) {
	t.Helper()
	dsn := fmt.Sprintf("file:agent_repo_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Agent{},
		&models.AgentHierarchy{},
		&models.AgentCommissionRule{},
		&models.AgentBalance{},
	); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return db, NewAgentRepository(db)
}

func createAgentChain(t *testing.T, repo *GormAgentRepository, depth int) []*models.Agent {
	t.Helper()
	agents := make([]*models.Agent, 0, depth)
	var parentID *uint
	for i := 0; i < depth; i++ {
		agent := &models.Agent{Name: fmt.Sprintf("代理%d", i), ParentID: parentID, Status: "active"}
		if err := repo.CreateWithHierarchy(agent); err != nil {
			t.Fatalf("create agent %d failed: %v", i, err)
		}
		id := agent.ID
		parentID = &id
		agents = append(agents, agent)
	}
	return agents
}

func TestCreateWithHierarchyClosureEdges(t *testing.T) {
	db, repo := setupAgentRepoTest(t)
	agents := createAgentChain(t, repo, 3)
	root, mid, leaf := agents[0], agents[1], agents[2]

	// 叶子节点：自身 depth 0 + 父 depth 1 + 根 depth 2
	var edges []models.AgentHierarchy
	if err := db.Where("descendant_id = ?", leaf.ID).Order("depth ASC").Find(&edges).Error; err != nil {
		t.Fatalf("load edges failed: %v", err)
	}
	if len(edges) != 3 {
		t.Fatalf("expected 3 closure edges for leaf, got %d", len(edges))
	}
	expectations := []struct {
		ancestorID uint
		depth      int
	}{
		{leaf.ID, 0},
		{mid.ID, 1},
		{root.ID, 2},
	}
	for i, want := range expectations {
		if edges[i].AncestorID != want.ancestorID || edges[i].Depth != want.depth {
			t.Fatalf("edge %d: expected ancestor=%d depth=%d, got ancestor=%d depth=%d",
				i, want.ancestorID, want.depth, edges[i].AncestorID, edges[i].Depth)
		}
	}

	// 根节点只有自反边
	var rootEdges []models.AgentHierarchy
	db.Where("descendant_id = ?", root.ID).Find(&rootEdges)
	if len(rootEdges) != 1 || rootEdges[0].AncestorID != root.ID || rootEdges[0].Depth != 0 {
		t.Fatalf("root must only have its self edge, got %+v", rootEdges)
	}
}

func TestListAncestorsOrdering(t *testing.T) {
	_, repo := setupAgentRepoTest(t)
	agents := createAgentChain(t, repo, 4)
	leaf := agents[3]

	ancestors, err := repo.ListAncestors(leaf.ID)
	if err != nil {
		t.Fatalf("list ancestors failed: %v", err)
	}
	// 不含自身，按距离升序：父 → 祖父 → 曾祖父
	if len(ancestors) != 3 {
		t.Fatalf("expected 3 ancestors, got %d", len(ancestors))
	}
	for i, edge := range ancestors {
		if edge.Depth != i+1 {
			t.Fatalf("ancestor %d: expected depth %d, got %d", i, i+1, edge.Depth)
		}
		if edge.AncestorID != agents[2-i].ID {
			t.Fatalf("ancestor %d: expected agent %d, got %d", i, agents[2-i].ID, edge.AncestorID)
		}
	}
}

func TestGetActiveRuleFiltersInactive(t *testing.T) {
	_, repo := setupAgentRepoTest(t)
	agents := createAgentChain(t, repo, 1)
	agent := agents[0]

	if err := repo.CreateRule(&models.AgentCommissionRule{
		AgentID:     agent.ID,
		Currency:    "CNY",
		RateType:    "percentage",
		RatePercent: models.NewMoneyFromDecimal(decimal.NewFromInt(1)),
		IsActive:    false,
	}); err != nil {
		t.Fatalf("create inactive rule failed: %v", err)
	}

	rule, err := repo.GetActiveRule(agent.ID, "CNY")
	if err != nil {
		t.Fatalf("get active rule failed: %v", err)
	}
	if rule != nil {
		t.Fatalf("inactive rule must not be returned")
	}

	if err := repo.CreateRule(&models.AgentCommissionRule{
		AgentID:     agent.ID,
		Currency:    "CNY",
		RateType:    "percentage",
		RatePercent: models.NewMoneyFromDecimal(decimal.NewFromInt(2)),
		IsActive:    true,
	}); err != nil {
		t.Fatalf("create active rule failed: %v", err)
	}

	// 币种大小写归一
	rule, err = repo.GetActiveRule(agent.ID, "cny")
	if err != nil {
		t.Fatalf("get active rule failed: %v", err)
	}
	if rule == nil || !rule.RatePercent.Decimal.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("expected active rule with rate 2, got %+v", rule)
	}
}

func TestCreditBalanceCreatesAndAccumulates(t *testing.T) {
	_, repo := setupAgentRepoTest(t)
	agents := createAgentChain(t, repo, 1)
	agent := agents[0]

	if balance, err := repo.GetBalance(agent.ID, "CNY"); err != nil || balance != nil {
		t.Fatalf("expected no balance row yet, got %+v %v", balance, err)
	}

	if err := repo.CreditBalance(agent.ID, "CNY", models.NewMoneyFromDecimal(decimal.NewFromFloat(10.5))); err != nil {
		t.Fatalf("first credit failed: %v", err)
	}
	if err := repo.CreditBalance(agent.ID, "cny", models.NewMoneyFromDecimal(decimal.NewFromFloat(0.25))); err != nil {
		t.Fatalf("second credit failed: %v", err)
	}

	balance, err := repo.GetBalance(agent.ID, "CNY")
	if err != nil {
		t.Fatalf("get balance failed: %v", err)
	}
	if balance == nil || !balance.Balance.Decimal.Equal(decimal.NewFromFloat(10.75)) {
		got := "nil"
		if balance != nil {
			got = balance.Balance.String()
		}
		t.Fatalf("expected balance 10.75, got %s", got)
	}
}
