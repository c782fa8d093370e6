// Package adapters wires the bundled providers into registries.
package adapters

import (
	"github.com/feitianbubu/mediaflow"
	"github.com/feitianbubu/mediaflow/adapters/chatimage"
	"github.com/feitianbubu/mediaflow/adapters/flux"
	"github.com/feitianbubu/mediaflow/adapters/gemini"
	"github.com/feitianbubu/mediaflow/adapters/kling"
	"github.com/feitianbubu/mediaflow/adapters/llm"
	"github.com/feitianbubu/mediaflow/adapters/sora"
	"github.com/feitianbubu/mediaflow/adapters/veo"
)

// RegisterDefaults registers every bundled image and video provider.
//
// Flux is the openai image provider found by protocol; the chat completions
// image provider needs ProviderConfig.Adapter. All video providers speak the
// openai protocol, so a protocol lookup resolves to Sora, which is registered
// first. Kling and Veo are selected through ProviderConfig.Adapter or by id.
func RegisterDefaults(backend mediaflow.Backend, images *mediaflow.ImageRegistry, videos *mediaflow.VideoRegistry) {
	if images != nil {
		images.Register(gemini.New(backend))
		images.Register(flux.New(backend))
		images.Register(chatimage.NewChat(backend))
		images.Register(chatimage.NewResponses(backend))
	}
	if videos != nil {
		videos.Register(sora.New(backend))
		videos.Register(kling.New(backend))
		videos.Register(veo.New(backend))
	}
}

// RegisterTextDefaults registers one text provider per protocol
func RegisterTextDefaults(backend mediaflow.Backend, texts *mediaflow.TextRegistry) {
	if texts != nil {
		llm.Register(backend, texts)
	}
}
