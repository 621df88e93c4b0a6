package server

import (
	"github.com/orgchat/orgchat/internal/types"
)

// annotateHierarchy returns a deep copy of the tree with every node's
// transient status set by membership in the online set. The canonical tree
// from the store is never touched, so two annotations with the same online
// set always produce the same result.
func annotateHierarchy(nodes []*types.HierarchyNode, online map[string]struct{}) []*types.HierarchyNode {
	annotated := make([]*types.HierarchyNode, 0, len(nodes))
	for _, node := range nodes {
		status := StatusOffline
		if _, ok := online[node.Id]; ok {
			status = StatusOnline
		}

		annotated = append(annotated, &types.HierarchyNode{
			Id:       node.Id,
			Name:     node.Name,
			Role:     node.Role,
			Email:    node.Email,
			Status:   status,
			Children: annotateHierarchy(node.Children, online),
		})
	}
	return annotated
}
