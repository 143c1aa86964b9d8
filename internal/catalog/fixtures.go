package catalog

import "landplots/internal/types"

// Fixtures are the sample Kyiv parcels the workspace starts with.
func Fixtures() []types.Parcel {
	return []types.Parcel{
		{
			ID:              "plot_001",
			CadastralNumber: "8000000000:001:0001",
			Address:         "м. Київ, вул. Хрещатик, 1",
			Area:            1.2505,
			Purpose:         "Комерційна забудова",
			Coordinates: []types.Ring{
				{{50.4501, 30.5234}, {50.4505, 30.5234}, {50.4505, 30.5240}, {50.4501, 30.5240}, {50.4501, 30.5234}},
			},
			Color:      "#407E6D",
			Source:     types.SourceTest,
			Value:      2500000,
			RentIncome: 15000,
		},
		{
			ID:              "plot_002",
			CadastralNumber: "8000000000:001:0002",
			Address:         "м. Київ, вул. Володимирська, 15",
			Area:            0.8902,
			Purpose:         "Житлова забудова",
			Coordinates: []types.Ring{
				{{50.4490, 30.5250}, {50.4495, 30.5250}, {50.4495, 30.5258}, {50.4490, 30.5258}, {50.4490, 30.5250}},
			},
			Color:      "#407E6D",
			Source:     types.SourceTest,
			Value:      1800000,
			RentIncome: 12000,
		},
		{
			ID:              "plot_003",
			CadastralNumber: "8000000000:001:0003",
			Address:         "м. Київ, просп. Перемоги, 50",
			Area:            2.1234,
			Purpose:         "Офісна забудова",
			Coordinates: []types.Ring{
				{{50.4480, 30.5260}, {50.4485, 30.5260}, {50.4485, 30.5270}, {50.4480, 30.5270}, {50.4480, 30.5260}},
			},
			Color:      "#407E6D",
			Source:     types.SourceTest,
			Value:      4200000,
			RentIncome: 25000,
		},
	}
}
