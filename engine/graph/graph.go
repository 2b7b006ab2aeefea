// Package graph maintains a Neo4j knowledge graph of conditions observed
// across diagnoses: which conditions affect which body parts and which ones
// co-occur. The orchestrator feeds completed diagnoses in and reads related
// conditions back out as prompt context.
package graph

import (
	"context"
	"strings"

	"github.com/HealthConnectAI/healthconnect-mvp/engine/domain"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// Condition is a node in the condition graph.
type Condition struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Urgency  domain.Urgency `json:"urgency"`
	LastSeen int64          `json:"last_seen"` // ms since epoch
	Count    int64          `json:"count"`
}

// Store owns all Neo4j operations for the condition graph.
type Store struct {
	driver neo4j.DriverWithContext
}

// New creates a Store on an existing driver.
func New(driver neo4j.DriverWithContext) *Store {
	return &Store{driver: driver}
}

// Close releases the underlying driver.
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// SaveDiagnosis records a completed diagnosis: one Condition node per
// potential condition, AFFECTS edges to the body part when known, and
// CO_OCCURS edges with incremented counts between every condition pair in
// the same diagnosis.
func (s *Store) SaveDiagnosis(ctx context.Context, result domain.DiagnosisResult, bodyPart string) error {
	if !result.Success || len(result.PotentialConditions) == 0 {
		return nil
	}

	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	_, err := sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, name := range result.PotentialConditions {
			cypher := `MERGE (c:Condition {id: $id})
			           ON CREATE SET c.count = 1
			           ON MATCH SET c.count = c.count + 1
			           SET c.name = $name, c.urgency = $urgency, c.last_seen = $seen`
			if _, err := tx.Run(ctx, cypher, map[string]any{
				"id":      ConditionID(name),
				"name":    name,
				"urgency": string(result.UrgencyLevel),
				"seen":    result.Timestamp,
			}); err != nil {
				return nil, err
			}

			if bodyPart != "" && bodyPart != domain.BodyPartDesconocido {
				cypher = `MATCH (c:Condition {id: $cID})
				          MERGE (b:BodyPart {id: $bID})
				          MERGE (c)-[:AFFECTS]->(b)`
				if _, err := tx.Run(ctx, cypher, map[string]any{
					"cID": ConditionID(name),
					"bID": strings.ToLower(bodyPart),
				}); err != nil {
					return nil, err
				}
			}
		}

		for i, a := range result.PotentialConditions {
			for _, b := range result.PotentialConditions[i+1:] {
				cypher := `MATCH (a:Condition {id: $aID}), (b:Condition {id: $bID})
				           MERGE (a)-[r:CO_OCCURS]-(b)
				           ON CREATE SET r.count = 1
				           ON MATCH SET r.count = r.count + 1`
				if _, err := tx.Run(ctx, cypher, map[string]any{
					"aID": ConditionID(a),
					"bID": ConditionID(b),
				}); err != nil {
					return nil, err
				}
			}
		}
		return nil, nil
	})
	return err
}

// RelatedConditions returns conditions that co-occurred with the given one,
// most frequent first.
func (s *Store) RelatedConditions(ctx context.Context, conditionName string, limit int) ([]Condition, error) {
	if limit <= 0 {
		limit = domain.MaxListLen
	}
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	cypher := `MATCH (:Condition {id: $id})-[r:CO_OCCURS]-(n:Condition)
	           RETURN n ORDER BY r.count DESC LIMIT $limit`
	result, err := sess.Run(ctx, cypher, map[string]any{
		"id":    ConditionID(conditionName),
		"limit": limit,
	})
	if err != nil {
		return nil, err
	}
	return collectConditions(ctx, result)
}

// ConditionsForBodyPart returns conditions known to affect the given body
// part, most frequently seen first.
func (s *Store) ConditionsForBodyPart(ctx context.Context, bodyPart string, limit int) ([]Condition, error) {
	if limit <= 0 {
		limit = domain.MaxListLen
	}
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	cypher := `MATCH (n:Condition)-[:AFFECTS]->(:BodyPart {id: $id})
	           RETURN n ORDER BY n.count DESC LIMIT $limit`
	result, err := sess.Run(ctx, cypher, map[string]any{
		"id":    strings.ToLower(bodyPart),
		"limit": limit,
	})
	if err != nil {
		return nil, err
	}
	return collectConditions(ctx, result)
}

func collectConditions(ctx context.Context, result neo4j.ResultWithContext) ([]Condition, error) {
	var items []Condition
	for result.Next(ctx) {
		node, _, err := neo4j.GetRecordValue[dbtype.Node](result.Record(), "n")
		if err != nil {
			return nil, err
		}
		items = append(items, conditionFromProps(node.Props))
	}
	return items, nil
}

func conditionFromProps(props map[string]any) Condition {
	c := Condition{
		ID:   strProp(props, "id"),
		Name: strProp(props, "name"),
	}
	c.Urgency = domain.Urgency(strProp(props, "urgency"))
	if v, ok := props["last_seen"].(int64); ok {
		c.LastSeen = v
	}
	if v, ok := props["count"].(int64); ok {
		c.Count = v
	}
	return c
}

func strProp(props map[string]any, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}

// ConditionID derives a stable node ID from a condition name: lowercase,
// spaces collapsed to hyphens, everything else except letters and digits
// dropped.
func ConditionID(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	lastHyphen := false
	for _, r := range lower {
		switch {
		case r == ' ' || r == '-' || r == '_':
			if !lastHyphen && b.Len() > 0 {
				b.WriteRune('-')
				lastHyphen = true
			}
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r > 127:
			b.WriteRune(r)
			lastHyphen = false
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
