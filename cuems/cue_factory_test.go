package cuems

import (
	"reflect"
	"testing"
)

func TestNewCueDefaults(t *testing.T) {
	f := NewCueFactory(testTemplate(t), testTopology(t))

	for _, kind := range CueKinds {
		c := f.NewCue(kind, 3)
		if c.ID == "" || c.Order != 3 || c.Type != kind || c.Name != DefaultCueNames[kind] {
			t.Errorf("%s: identity %+v", kind, c)
		}
		if c.Time != ZeroTimecode || c.Prewait != ZeroTimecode || c.Postwait != ZeroTimecode {
			t.Errorf("%s: timecodes %q %q %q", kind, c.Time, c.Prewait, c.Postwait)
		}
		if c.PostGo != PostGoPause || c.LoopTimes != 1 || !c.Expanded || c.ActiveTab != TabEdit {
			t.Errorf("%s: post_go %q loop %d expanded %v tab %q", kind, c.PostGo, c.LoopTimes, c.Expanded, c.ActiveTab)
		}
	}
}

func TestNewCueVariantPayloads(t *testing.T) {
	f := NewCueFactory(testTemplate(t), testTopology(t))

	audio := f.NewCue(KindAudio, 1)
	if !reflect.DeepEqual(audio.SelectedOutputs, []string{refPlayback1}) {
		t.Errorf("audio outputs = %v", audio.SelectedOutputs)
	}
	if audio.MasterVol != 40 {
		t.Errorf("audio master_vol = %d, want the template's 40", audio.MasterVol)
	}

	video := f.NewCue(KindVideo, 1)
	if !reflect.DeepEqual(video.SelectedOutputs, []string{refVideo0}) {
		t.Errorf("video outputs = %v", video.SelectedOutputs)
	}

	dmx := f.NewCue(KindDmx, 1)
	if !reflect.DeepEqual(dmx.DmxChannels, []DmxChannel{{Channel: 1, Value: 10}}) {
		t.Errorf("dmx channels = %v", dmx.DmxChannels)
	}

	action := f.NewCue(KindAction, 1)
	if len(action.SelectedOutputs) != 0 || action.DmxChannels != nil {
		t.Errorf("action payload = %+v", action)
	}
}

func TestNewCueWithoutTemplateOrTopology(t *testing.T) {
	f := NewCueFactory(nil, nil)

	audio := f.NewCue(KindAudio, 1)
	if audio.MasterVol != DefaultMasterVolume || len(audio.SelectedOutputs) != 0 {
		t.Errorf("audio = %+v", audio)
	}
	dmx := f.NewCue(KindDmx, 1)
	if !reflect.DeepEqual(dmx.DmxChannels, []DmxChannel{{Channel: 1, Value: 0}}) {
		t.Errorf("dmx channels = %v", dmx.DmxChannels)
	}

	onlyDefault := NewCueFactory(nil, &Topology{DefaultAudioOutput: refPlayback2})
	if got := onlyDefault.NewCue(KindAudio, 1).SelectedOutputs; !reflect.DeepEqual(got, []string{refPlayback2}) {
		t.Errorf("fallback to default output failed: %v", got)
	}
}
