package event

import (
	"github.com/survarena/server/internal/core/ecs"
	"github.com/survarena/server/internal/geom"
)

type PlayerJoined struct {
	EntityID ecs.EntityID
	Name     string
}

type PlayerKilled struct {
	Victim ecs.EntityID
	Killer ecs.EntityID // zero for gas deaths
	Alive  int
}

type PlayerLeft struct {
	EntityID  ecs.EntityID
	SessionID uint64
}

type GasStageChanged struct {
	Stage int
	State string
}

type AirdropSummoned struct {
	EntityID ecs.EntityID
	Pos      geom.Vec2
}

type AirdropLanded struct {
	Crate ecs.EntityID
	Pos   geom.Vec2
}

type ObstacleDestroyed struct {
	EntityID ecs.EntityID
	Pos      geom.Vec2
}
